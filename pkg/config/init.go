package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// sampleConfig is the annotated configuration written by `guetzlid init`.
const sampleConfig = `# guetzlid configuration
#
# Every option can be overridden with an environment variable:
#   GUETZLI_<SECTION>_<KEY>, e.g. GUETZLI_LOGGING_LEVEL=DEBUG

logging:
  # DEBUG, INFO, WARN or ERROR
  level: INFO
  # text or json
  format: text
  # stdout, stderr or a file path
  output: stdout

# Maximum time to wait for in-flight requests on shutdown
shutdown_timeout: 30s

storage:
  # Base directory for content entries; empty means <home>/.guetzli-data
  base: ""

upload:
  # Largest accepted upload
  max_size: 8Mi

transform:
  # Concurrent recompressions, process wide
  parallelism: 2
  # Memory budget handed to guetzli via --memlimit
  memlimit_mb: 6000
  # Bound on a single quality probe run
  probe_timeout: 5s
  # Poll interval and count while waiting for guetzli to finish
  wait_interval: 5s
  max_waits: 180

janitor:
  # Entries older than this are deleted
  max_age: 24h
  # Sweep cadence
  interval: 30m

api:
  port: 8080
  read_timeout: 30s
  write_timeout: 30s
  idle_timeout: 60s

metrics:
  enabled: false
  port: 9090
`

// InitConfig writes a sample configuration file to the default location
// and returns its path. Refuses to overwrite unless force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	return path, InitConfigToPath(path, force)
}

// InitConfigToPath writes a sample configuration file to the given path.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
