package configuration

import (
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/G-Research/scalebench/internal/common"
)

const (
	defaultRepeats = 7
	defaultTimeout = 300 * time.Second
	ompNumThreads  = "OMP_NUM_THREADS"
)

// EnvKeys are the keys that may be set from SCALEBENCH_* environment variables,
// e.g. SCALEBENCH_PROCESSCOUNTS=1,2,4 or SCALEBENCH_OUTPUT_DIRECTORY=results.
var EnvKeys = []string{
	"loglevel",
	"processcounts",
	"executables.serial",
	"executables.parallel",
	"executables.workingdirectory",
	"launcher.command",
	"launcher.flags",
	"launcher.usehardwarethreads",
	"launcher.reportbindings",
	"build.enabled",
	"output.directory",
	"patterns.serial",
	"patterns.parallel",
	"patterns.fallback",
	"events.nats.enabled",
	"events.nats.url",
	"events.nats.subject",
	"events.mqtt.enabled",
	"events.mqtt.broker",
	"events.mqtt.topic",
	"events.mqtt.clientid",
	"metrics.textfile",
}

// Load returns Default overlaid with the YAML file at path (optional) and the environment. The result is not
// validated.
func Load(path string) (Configuration, error) {
	config := Default()
	if _, err := common.LoadConfig(&config, path, EnvKeys...); err != nil {
		return Configuration{}, err
	}
	config.applyDefaults()
	return config, nil
}

// applyDefaults fills in what a config file leaves out of the entries of lists and maps it replaces.
func (c *Configuration) applyDefaults() {
	for i := range c.Groups {
		if c.Groups[i].Repeats == 0 {
			c.Groups[i].Repeats = defaultRepeats
		}
		if c.Groups[i].Timeout == 0 {
			c.Groups[i].Timeout = defaultTimeout
		}
	}
	// Viper folds keys to lower case; environment variable names are conventionally upper case.
	env := make(map[string]string, len(c.Env)+1)
	for k, v := range c.Env {
		env[strings.ToUpper(k)] = v
	}
	// Nested threading is fixed to one thread per worker process.
	if v, ok := env[ompNumThreads]; ok && v != "1" {
		log.Warnf("Ignoring env %s=%s; trials always run with %s=1", ompNumThreads, v, ompNumThreads)
	}
	env[ompNumThreads] = "1"
	c.Env = env
}
