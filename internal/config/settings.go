package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. MODAPPLY_HOOKS_ENABLED.
const EnvPrefix = "MODAPPLY"

// Configuration keys.
const (
	KeyTargetDir    = "target_dir"
	KeyManifest     = "manifest"
	KeyWorkspaceDir = "workspace_dir"
	KeyLogFile      = "log_file"
	KeyForce        = "force"
	KeyStrict       = "strict"

	KeyHooksEnabled      = "hooks.enabled"
	KeyHooksShellTimeout = "hooks.shell_timeout"

	KeyLogFilename   = "log.filename"
	KeyLogLevel      = "log.level"
	KeyLogVerbose    = "log.verbose"
	KeyLogMaxSize    = "log.max_size"
	KeyLogMaxBackups = "log.max_backups"
	KeyLogMaxAge     = "log.max_age"
	KeyLogCompress   = "log.compress"
)

const (
	defaultShellTimeout  = 5 * time.Minute
	defaultLogLevel      = "info"
	defaultLogMaxSize    = 10
	defaultLogMaxBackups = 3
	defaultLogMaxAge     = 28
	defaultLogCompress   = true
)

// ErrConfigFile indicates an explicitly requested config file could not be used.
var ErrConfigFile = errors.New("cannot load config file")

// Settings is the fully resolved configuration.
type Settings struct {
	TargetDir    string `mapstructure:"target_dir" json:"target_dir" yaml:"target_dir"`
	Manifest     string `mapstructure:"manifest" json:"manifest" yaml:"manifest"`
	WorkspaceDir string `mapstructure:"workspace_dir" json:"workspace_dir" yaml:"workspace_dir"`
	LogFile      string `mapstructure:"log_file" json:"log_file" yaml:"log_file"`
	Force        bool   `mapstructure:"force" json:"force" yaml:"force"`
	Strict       bool   `mapstructure:"strict" json:"strict" yaml:"strict"`

	Hooks HookSettings `mapstructure:"hooks" json:"hooks" yaml:"hooks"`
	Log   LogSettings  `mapstructure:"log" json:"log" yaml:"log"`
}

// HookSettings controls extension hooks.
type HookSettings struct {
	Enabled      bool          `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	ShellTimeout time.Duration `mapstructure:"shell_timeout" json:"shell_timeout" yaml:"shell_timeout"`
}

// LogSettings controls the diagnostic log, not the applied-paths log.
type LogSettings struct {
	Filename   string `mapstructure:"filename" json:"filename" yaml:"filename"`
	Level      string `mapstructure:"level" json:"level" yaml:"level"`
	Verbose    bool   `mapstructure:"verbose" json:"verbose" yaml:"verbose"`
	MaxSize    int    `mapstructure:"max_size" json:"max_size" yaml:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" json:"max_age" yaml:"max_age"`
	Compress   bool   `mapstructure:"compress" json:"compress" yaml:"compress"`
}

// NewViper returns a viper instance with defaults and environment overrides.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	// Every key needs a default so Unmarshal sees env overrides.
	v.SetDefault(KeyTargetDir, "")
	v.SetDefault(KeyManifest, "")
	v.SetDefault(KeyWorkspaceDir, "")
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyForce, false)
	v.SetDefault(KeyStrict, false)

	v.SetDefault(KeyHooksEnabled, true)
	v.SetDefault(KeyHooksShellTimeout, defaultShellTimeout)

	v.SetDefault(KeyLogFilename, "")
	v.SetDefault(KeyLogLevel, defaultLogLevel)
	v.SetDefault(KeyLogVerbose, false)
	v.SetDefault(KeyLogMaxSize, defaultLogMaxSize)
	v.SetDefault(KeyLogMaxBackups, defaultLogMaxBackups)
	v.SetDefault(KeyLogMaxAge, defaultLogMaxAge)
	v.SetDefault(KeyLogCompress, defaultLogCompress)

	return v
}

// BindFlag makes flag the highest-priority source for key.
func BindFlag(v *viper.Viper, key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("flag for config key %q not found", key)
	}
	return v.BindPFlag(key, flag)
}

// Load reads configFile into v, if present, and decodes the settings.
// A missing file is only an error when required is set.
func Load(v *viper.Viper, configFile string, required bool) (*Settings, error) {
	if configFile != "" {
		info, err := os.Stat(configFile)
		switch {
		case err == nil && !info.IsDir():
			v.SetConfigFile(configFile)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("%w %s: %v", ErrConfigFile, configFile, err)
			}
		case required:
			return nil, fmt.Errorf("%w %s: file not found", ErrConfigFile, configFile)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &s, nil
}
