package common

import (
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/G-Research/scalebench/internal/common/config"
	"github.com/G-Research/scalebench/internal/common/logging"
)

const envPrefix = "SCALEBENCH"

// LoadConfig overlays the YAML file at path, if any, and SCALEBENCH_* environment variables onto target, which
// should already hold the defaults. Keys absent from both sources keep their default values; lists present in a
// source replace the default list rather than being merged into it. Only the dotted keys listed in envKeys can be
// set from the environment, e.g. "output.directory" is read from SCALEBENCH_OUTPUT_DIRECTORY.
func LoadConfig(target interface{}, path string, envKeys ...string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, errors.WithStack(err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading config file %s", path)
		}
		log.Infof("Read config from %s", v.ConfigFileUsed())
	}

	opts := append(
		[]viper.DecoderConfigOption{func(dc *mapstructure.DecoderConfig) { dc.ZeroFields = true }},
		config.CustomHooks...)
	if err := v.Unmarshal(target, opts...); err != nil {
		return nil, errors.Wrap(err, "decoding config")
	}
	return v, nil
}

// ConfigureCommandLineLogging sets up logrus for interactive use: plain messages on stdout.
func ConfigureCommandLineLogging() {
	log.SetFormatter(new(logging.CommandLineFormatter))
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel)
}

// ConfigureLogging sets up logrus with full timestamps, for runs whose output is captured to a file.
func ConfigureLogging() {
	log.SetFormatter(&log.TextFormatter{ForceColors: false, FullTimestamp: true})
	log.SetOutput(os.Stdout)
}

// SetLogLevel parses level (e.g. "debug", "warn") and applies it to the standard logger.
func SetLogLevel(level string) error {
	l, err := log.ParseLevel(level)
	if err != nil {
		return errors.WithStack(err)
	}
	log.SetLevel(l)
	return nil
}
