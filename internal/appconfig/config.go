package appconfig

import (
	"os"
	"path/filepath"

	"pkt.systems/conspool/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int           `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string        `mapstructure:"state_dir" yaml:"state_dir"`
	RulesFile     string        `mapstructure:"rules_file" yaml:"rules_file"`
	Engine        EngineConfig  `mapstructure:"engine" yaml:"engine"`
	Process       ProcessConfig `mapstructure:"process" yaml:"process"`
	HTTP          HTTPConfig    `mapstructure:"http" yaml:"http"`
	SSH           SSHConfig     `mapstructure:"ssh" yaml:"ssh"`
	Logging       LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// EngineConfig controls the console engine knobs.
type EngineConfig struct {
	CyclicCapacity       int `mapstructure:"cyclic_capacity" yaml:"cyclic_capacity"`
	FlushDelayMS         int `mapstructure:"flush_delay_ms" yaml:"flush_delay_ms"`
	CommandLineFoldLimit int `mapstructure:"command_line_fold_limit" yaml:"command_line_fold_limit"`
	HistoryLimit         int `mapstructure:"history_limit" yaml:"history_limit"`
	TranscriptTailBytes  int `mapstructure:"transcript_tail_bytes" yaml:"transcript_tail_bytes"`
}

// ProcessConfig configures the attached process.
type ProcessConfig struct {
	Command []string          `mapstructure:"command" yaml:"command"`
	WorkDir string            `mapstructure:"work_dir" yaml:"work_dir"`
	Env     map[string]string `mapstructure:"env" yaml:"env"`
	Term    string            `mapstructure:"term" yaml:"term"`
	Rows    int               `mapstructure:"rows" yaml:"rows"`
	Cols    int               `mapstructure:"cols" yaml:"cols"`
}

// HTTPConfig configures the HTTP viewer endpoint.
type HTTPConfig struct {
	Addr          string `mapstructure:"addr" yaml:"addr"`
	StreamHistory int    `mapstructure:"stream_history" yaml:"stream_history"`
}

// SSHConfig configures the SSH viewer endpoint.
type SSHConfig struct {
	Addr           string `mapstructure:"addr" yaml:"addr"`
	HostKeyPath    string `mapstructure:"host_key_path" yaml:"host_key_path"`
	AuthorizedKeys string `mapstructure:"authorized_keys" yaml:"authorized_keys"`
	Theme          string `mapstructure:"theme" yaml:"theme"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" yaml:"max_age_days"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      filepath.Join(home, ".conspool", "state"),
		RulesFile:     filepath.Join(home, ".conspool", "rules.yaml"),
		Engine: EngineConfig{
			CyclicCapacity:       0,
			FlushDelayMS:         int(schema.DefaultFlushDelay.Milliseconds()),
			CommandLineFoldLimit: schema.DefaultCommandLineFoldLimit,
			HistoryLimit:         500,
			TranscriptTailBytes:  256 * 1024,
		},
		Process: ProcessConfig{
			Command: []string{},
			WorkDir: "",
			Env:     map[string]string{},
			Term:    "xterm-256color",
			Rows:    40,
			Cols:    120,
		},
		HTTP: HTTPConfig{
			Addr:          ":28480",
			StreamHistory: 512,
		},
		SSH: SSHConfig{
			Addr:           ":28422",
			HostKeyPath:    filepath.Join(home, ".conspool", "ssh_host_key"),
			AuthorizedKeys: filepath.Join(home, ".conspool", "authorized_keys"),
			Theme:          "outrun",
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       "",
			MaxSizeMB:  32,
			MaxBackups: 4,
			MaxAgeDays: 30,
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".conspool", "config.yaml"), nil
}
