package config

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	"github.com/driftwatch/deltasync/internal/domain"
	"github.com/driftwatch/deltasync/internal/logger"
	"github.com/driftwatch/deltasync/pkg/errors"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

var configTemplate = `# config.toml

[server]
  # Hostname or IP address for the server to listen on.
  # Default: "{{ .host }}"
  host = "{{ .host }}"

  # Port for the server to listen on.
  # Default: 8484
  port = 8484

  # Base URL for serving the application under a subdirectory.
  # Optional.
  # Default: ""
  #base_url = ""

[database]
  # Database type to use.
  # Supported: "sqlite", "postgres"
  # Default: "sqlite"
  type = "sqlite"

  [database.postgres]
    # These settings are only used if database.type is "postgres".
    host = "localhost"
    port = 5432
    database = "postgres"
    username = "postgres"
    password = "postgres"
    ssl_mode = "disable"

[logging]
  # Log file path. Empty writes to stderr only.
  # Optional.
  # Default: ""
  path = "log/"

  # Log level. Options: "ERROR", "WARN", "INFO", "DEBUG", "TRACE"
  # Default: "DEBUG"
  level = "DEBUG"

  # Maximum size of a log file in megabytes before rotation.
  # Default: 50
  max_file_size = 50

  # Maximum number of rotated log files to keep.
  # Default: 3
  max_backup_count = 3

[auth]
  # Bearer token sync clients must present. Generated on first run.
  # Empty disables authentication.
  api_token = "{{ .apiToken }}"

[sync]
  # Entity types registered for sync.
  entity_types = ["gate", "inspection", "ticket"]

  # Deltas returned per pull when the client does not ask for a batch size.
  # Default: 100
  default_batch_size = 100

  # Upper bound on client-requested batch sizes.
  # Default: 1000
  max_batch_size = 1000

  # Window used when a pull carries no checkpoint: changes from
  # now minus this many minutes.
  # Default: 60
  default_pull_window_minutes = 60

  # Days soft-deleted entities are kept before the prune job removes them.
  # 0 disables pruning.
  # Default: 90
  tombstone_retention_days = 90

  # Cron schedule for the tombstone prune job.
  # Default: "0 4 * * *" (4 AM daily)
  prune_schedule = "0 4 * * *"

[retry]
  # Retry attempts for transient pull/push failures.
  # Default: 5
  max_retries = 5

  # First retry delay in milliseconds.
  # Default: 1000
  base_delay_ms = 1000

  # Backoff multiplier per attempt.
  # Default: 2.0
  multiplier = 2.0

  # Cap on any single delay, in seconds.
  # Default: 300
  max_delay_sec = 300

  # Add random jitter to delays.
  # Default: false
  jitter = false
`

var generateRandomString = func(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func writeConfig(configPath string, configFile string) error {
	cfgPath := filepath.Join(configPath, configFile)

	// check if configPath exists, if not create it
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(configPath, os.ModePerm); err != nil {
			log.Println(err)
			return err
		}
	}

	// check if config exists, if not create it
	if _, err := os.Stat(cfgPath); errors.Is(err, os.ErrNotExist) {
		// set default host
		host := "127.0.0.1"

		if _, dockerErr := os.Stat("/.dockerenv"); dockerErr == nil {
			host = "0.0.0.0"
		} else if pd, cgroupErr := os.Open("/proc/1/cgroup"); cgroupErr == nil {
			defer pd.Close()
			b := make([]byte, 4096)
			if _, readErr := pd.Read(b); readErr == nil {
				if strings.Contains(string(b), "/docker") || strings.Contains(string(b), "/lxc") {
					host = "0.0.0.0"
				}
			}
		}

		f, err := os.Create(cfgPath)
		if err != nil {
			log.Printf("error creating file: %q", err)
			return err
		}
		defer f.Close()

		apiToken, err := generateRandomString(16)
		if err != nil {
			return errors.Wrap(err, "could not generate api token")
		}

		tmpl, err := template.New("config").Parse(configTemplate)
		if err != nil {
			return errors.Wrap(err, "could not create config template")
		}

		tmplVars := map[string]string{
			"host":     host,
			"apiToken": apiToken,
		}

		var buffer bytes.Buffer
		if err := tmpl.Execute(&buffer, &tmplVars); err != nil {
			return errors.Wrap(err, "could not write config template output")
		}

		if _, err := f.WriteString(buffer.String()); err != nil {
			log.Printf("error writing contents to file: %v %q", configPath, err)
			return err
		}

		return f.Sync()
	}

	return nil
}

type Config interface {
	DynamicReload(log logger.Logger)
}

type AppConfig struct {
	Config *domain.Config
	m      sync.Mutex
}

func New(configPath string, version string) *AppConfig {
	c := &AppConfig{}
	c.defaults()
	c.Config.Version = version
	c.Config.ConfigPath = configPath

	c.load(configPath)

	return c
}

func (c *AppConfig) defaults() {
	c.Config = &domain.Config{
		Version: "dev",
		Server: domain.ServerConfig{
			Host:    "127.0.0.1",
			Port:    8484,
			BaseURL: "",
		},
		Database: domain.DatabaseConfig{
			Type: "sqlite",
			Postgres: domain.PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "postgres",
				User:     "postgres",
				Pass:     "postgres",
				SslMode:  "disable",
			},
		},
		Logging: domain.LoggingConfig{
			Path:           "",
			Level:          "DEBUG",
			MaxFileSize:    50,
			MaxBackupCount: 3,
		},
		Auth: domain.AuthConfig{
			APIToken: "",
		},
		Sync: domain.SyncConfig{
			EntityTypes:              []string{"gate", "inspection", "ticket"},
			DefaultBatchSize:         100,
			MaxBatchSize:             1000,
			DefaultPullWindowMinutes: 60,
			TombstoneRetentionDays:   90,
			PruneSchedule:            "0 4 * * *",
		},
		Retry: domain.RetryConfig{
			MaxRetries:  5,
			BaseDelayMs: 1000,
			MaxDelaySec: 300,
			Multiplier:  2.0,
			Jitter:      false,
		},
	}
}

func (c *AppConfig) load(configPath string) {
	viper.SetConfigType("toml")
	configPath = path.Clean(configPath)

	if configPath != "" {
		if err := writeConfig(configPath, "config.toml"); err != nil {
			log.Printf("writeConfig error during load: %q", err)
		}
		viper.SetConfigFile(path.Join(configPath, "config.toml"))
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.config/deltasync")
		viper.AddConfigPath("$HOME/.deltasync")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Printf("config file not found, using defaults")
		} else {
			log.Printf("config read error: %q, using defaults", err)
		}
	}

	if err := viper.Unmarshal(&c.Config); err != nil {
		log.Fatalf("could not unmarshal config file into struct: %v", err)
	}
}

func (c *AppConfig) DynamicReload(log logger.Logger) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		c.m.Lock()
		defer c.m.Unlock()

		log.Info().Msgf("config file changed: %s, reloading", e.Name)

		if err := viper.ReadInConfig(); err != nil {
			log.Error().Err(err).Msg("error reading config file during dynamic reload")
			return
		}

		var newConfig domain.Config
		// version and config path are process state, not file state
		newConfig.Version = c.Config.Version
		newConfig.ConfigPath = c.Config.ConfigPath

		if err := viper.Unmarshal(&newConfig); err != nil {
			log.Error().Err(err).Msg("error unmarshalling config during dynamic reload")
			return
		}

		c.Config = &newConfig

		log.SetLogLevel(c.Config.Logging.Level)

		log.Debug().Msg("config reloaded")
	})
	viper.WatchConfig()
}
