package appconfig

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("config_version", cfg.ConfigVersion)
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("rules_file", cfg.RulesFile)
	v.SetDefault("engine.cyclic_capacity", cfg.Engine.CyclicCapacity)
	v.SetDefault("engine.flush_delay_ms", cfg.Engine.FlushDelayMS)
	v.SetDefault("engine.command_line_fold_limit", cfg.Engine.CommandLineFoldLimit)
	v.SetDefault("engine.history_limit", cfg.Engine.HistoryLimit)
	v.SetDefault("engine.transcript_tail_bytes", cfg.Engine.TranscriptTailBytes)
	v.SetDefault("process.command", cfg.Process.Command)
	v.SetDefault("process.work_dir", cfg.Process.WorkDir)
	v.SetDefault("process.env", cfg.Process.Env)
	v.SetDefault("process.term", cfg.Process.Term)
	v.SetDefault("process.rows", cfg.Process.Rows)
	v.SetDefault("process.cols", cfg.Process.Cols)
	v.SetDefault("http.addr", cfg.HTTP.Addr)
	v.SetDefault("http.stream_history", cfg.HTTP.StreamHistory)
	v.SetDefault("ssh.addr", cfg.SSH.Addr)
	v.SetDefault("ssh.host_key_path", cfg.SSH.HostKeyPath)
	v.SetDefault("ssh.authorized_keys", cfg.SSH.AuthorizedKeys)
	v.SetDefault("ssh.theme", cfg.SSH.Theme)
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.file", cfg.Logging.File)
	v.SetDefault("logging.max_size_mb", cfg.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", cfg.Logging.MaxBackups)
	v.SetDefault("logging.max_age_days", cfg.Logging.MaxAgeDays)

	// a missing config file means defaults; running ad hoc needs no setup
	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && !os.IsNotExist(err) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	if cfg.Engine.CyclicCapacity < 0 {
		return fmt.Errorf("engine.cyclic_capacity must not be negative")
	}
	if cfg.Engine.FlushDelayMS <= 0 {
		return fmt.Errorf("engine.flush_delay_ms must be positive")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported logging.level %q", cfg.Logging.Level)
	}
	if err := validateAddr("http.addr", cfg.HTTP.Addr); err != nil {
		return err
	}
	if err := validateAddr("ssh.addr", cfg.SSH.Addr); err != nil {
		return err
	}
	if len(cfg.Process.Command) > 0 && strings.TrimSpace(cfg.Process.Command[0]) == "" {
		return fmt.Errorf("process.command must start with an executable")
	}
	return nil
}

func validateAddr(key, addr string) error {
	if strings.TrimSpace(addr) == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("%s must be host:port: %v", key, err)
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.StateDir = expandEnv(cfg.StateDir)
	cfg.RulesFile = expandEnv(cfg.RulesFile)
	cfg.Process.WorkDir = expandEnv(cfg.Process.WorkDir)
	cfg.SSH.HostKeyPath = expandEnv(cfg.SSH.HostKeyPath)
	cfg.SSH.AuthorizedKeys = expandEnv(cfg.SSH.AuthorizedKeys)
	cfg.Logging.File = expandEnv(cfg.Logging.File)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
