package logging

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"
)

// CommandLineFormatter renders entries for a human watching a sweep in a terminal: the bare message for info and
// debug lines, a level prefix for warnings and errors, followed by any fields in key order.
type CommandLineFormatter struct{}

func (f *CommandLineFormatter) Format(entry *log.Entry) ([]byte, error) {
	b := &bytes.Buffer{}
	if entry.Level <= log.WarnLevel {
		b.WriteString(strings.ToUpper(entry.Level.String()))
		b.WriteString(": ")
	}
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, " %s=%v", k, entry.Data[k])
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}
