package report

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.WithStack(err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = errors.WithStack(closeErr)
		}
	}()
	if err := write(f); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	return nil
}
