// Package config resolves the governor configuration once at start-up from
// a TOML file, POWERGOV_* environment variables and command line flags.
package config

import (
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/powergov/internal/classify"
	"codeberg.org/mutker/powergov/internal/errors"
	"codeberg.org/mutker/powergov/internal/gate"
	"codeberg.org/mutker/powergov/internal/logger"
	"codeberg.org/mutker/powergov/internal/profile"
	"github.com/spf13/viper"
)

const (
	DefaultConfigPath = "/etc/powergov/powergov.toml"
	DefaultEnvPrefix  = "POWERGOV"
	DefaultLogLevel   = "info"

	ClassifierThreshold = "threshold"
	ClassifierWeighted  = "weighted"
)

type Config struct {
	LogLevel string `mapstructure:"log_level"`
	Debug    bool   `mapstructure:"debug"`
	Verbose  bool   `mapstructure:"verbose"`

	Interval time.Duration `mapstructure:"interval"`
	Cooldown time.Duration `mapstructure:"cooldown"`
	// MaxDuration caps time in any non-default profile, 0 = unlimited.
	MaxDuration time.Duration `mapstructure:"max_duration"`
	// ManualHold is the default hold after a manual set.
	ManualHold      time.Duration `mapstructure:"manual_hold"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	DefaultProfile string              `mapstructure:"default_profile"`
	Profiles       []profile.Profile   `mapstructure:"profiles"`
	Signatures     map[string][]string `mapstructure:"signatures"`
	Classifier     ClassifierConfig    `mapstructure:"classifier"`
	Safety         SafetyConfig        `mapstructure:"safety"`

	StateFile string `mapstructure:"state_file"`
	LockFile  string `mapstructure:"lock_file"`
	PIDFile   string `mapstructure:"pid_file"`

	State     StateConfig     `mapstructure:"state"`
	Lock      LockConfig      `mapstructure:"lock"`
	History   HistoryConfig   `mapstructure:"history"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Actuator  ActuatorConfig  `mapstructure:"actuator"`
	GPU       GPUConfig       `mapstructure:"gpu"`
	Display   DisplayConfig   `mapstructure:"display"`

	// ConfigFile is the file that was read, empty when none.
	ConfigFile string `mapstructure:"-"`
}

type ClassifierConfig struct {
	Mode                   string              `mapstructure:"mode"`
	Triggers               []classify.Trigger  `mapstructure:"triggers"`
	Priority               []string            `mapstructure:"priority"`
	Categories             []classify.Category `mapstructure:"categories"`
	GPUFallbackProfile     string              `mapstructure:"gpu_fallback_profile"`
	GPUFallbackUtilization int                 `mapstructure:"gpu_fallback_utilization"`
}

type SafetyConfig struct {
	GPUTempCeiling int `mapstructure:"gpu_temp_ceiling"`
	CPUTempCeiling int `mapstructure:"cpu_temp_ceiling"`
	// Recovery defaults to the cooldown when zero.
	Recovery time.Duration `mapstructure:"recovery"`
}

type StateConfig struct {
	MaxPersistFailures int `mapstructure:"max_persist_failures"`
}

type LockConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type HistoryConfig struct {
	// Path empty keeps history in memory only.
	Path       string        `mapstructure:"path"`
	MaxRecords int           `mapstructure:"max_records"`
	MaxAge     time.Duration `mapstructure:"max_age"`
}

type TelemetryConfig struct {
	Timeout    time.Duration `mapstructure:"timeout"`
	SysRoot    string        `mapstructure:"sys_root"`
	CPUSensors []string      `mapstructure:"cpu_sensors"`
}

type ActuatorConfig struct {
	Timeout  time.Duration `mapstructure:"timeout"`
	SysRoot  string        `mapstructure:"sys_root"`
	ProcRoot string        `mapstructure:"proc_root"`
}

type GPUConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Index   int  `mapstructure:"index"`
}

type DisplayConfig struct {
	Command []string `mapstructure:"command"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("debug", false)
	v.SetDefault("verbose", false)
	v.SetDefault("interval", "5s")
	v.SetDefault("cooldown", "60s")
	v.SetDefault("max_duration", "0s")
	v.SetDefault("manual_hold", "0s")
	v.SetDefault("shutdown_timeout", "10s")
	v.SetDefault("default_profile", "")

	v.SetDefault("classifier.mode", ClassifierThreshold)
	v.SetDefault("classifier.gpu_fallback_profile", "")
	v.SetDefault("classifier.gpu_fallback_utilization", 1)

	v.SetDefault("safety.gpu_temp_ceiling", 87)
	v.SetDefault("safety.cpu_temp_ceiling", 95)
	v.SetDefault("safety.recovery", "0s")

	v.SetDefault("state_file", "/var/lib/powergov/state.json")
	v.SetDefault("lock_file", "/run/powergov.lock")
	v.SetDefault("pid_file", "/run/powergov.pid")
	v.SetDefault("state.max_persist_failures", 2)
	v.SetDefault("lock.timeout", "2s")

	v.SetDefault("history.path", "/var/lib/powergov/history.db")
	v.SetDefault("history.max_records", 1000)
	v.SetDefault("history.max_age", "720h")

	v.SetDefault("telemetry.timeout", "2s")
	v.SetDefault("telemetry.sys_root", "/sys")
	v.SetDefault("actuator.timeout", "2s")
	v.SetDefault("actuator.sys_root", "/sys")
	v.SetDefault("actuator.proc_root", "/proc")

	v.SetDefault("gpu.enabled", true)
	v.SetDefault("gpu.index", 0)
}

// flagKeys maps configuration keys to the command line flags bound to them.
var flagKeys = map[string]string{
	"log_level":  "log-level",
	"debug":      "debug",
	"verbose":    "verbose",
	"interval":   "interval",
	"state_file": "state-file",
	"pid_file":   "pid-file",
}

// Load reads the configuration. The file is taken from WithConfigFile,
// then $POWERGOV_CONFIG, then DefaultConfigPath; only an explicitly named
// file must exist.
func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidArgument, err)
		}
	}

	v := viper.New()
	v.SetConfigType("toml")
	setDefaults(v)

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	explicit := true
	path := o.configPath
	if path == "" {
		path = os.Getenv(o.envPrefix + "_CONFIG")
	}
	if path == "" {
		path = DefaultConfigPath
		explicit = false
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		_, statErr := os.Stat(path)
		if explicit || !os.IsNotExist(statErr) {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
		path = ""
	}

	if o.flags != nil {
		for key, name := range flagKeys {
			if f := o.flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, errFactory.Wrap(errors.ErrBindFlags, err)
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}
	cfg.ConfigFile = path

	if len(cfg.Profiles) == 0 {
		cfg.Profiles = profile.Builtin()
		if len(cfg.Classifier.Triggers) == 0 && len(cfg.Classifier.Categories) == 0 {
			cfg.Classifier.Triggers = builtinTriggers()
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// builtinTriggers pairs with profile.Builtin.
func builtinTriggers() []classify.Trigger {
	return []classify.Trigger{
		{Profile: "performance", GPUUtilization: 60},
		{Profile: "performance", VRAMUsedMB: 4096},
		{Profile: "balanced", Power: "ac"},
	}
}

// EffectiveLogLevel folds the debug and verbose switches into LogLevel.
func (c *Config) EffectiveLogLevel() string {
	switch {
	case c.Debug:
		return LogLevelDebug.String()
	case c.Verbose && LogLevel(strings.ToLower(c.LogLevel)) != LogLevelDebug:
		return LogLevelInfo.String()
	default:
		return c.LogLevel
	}
}

// Validate checks ranges and cross references that do not need the
// catalog; Catalog and Classifier check the rest.
func (c *Config) Validate() error {
	errFactory := errors.New()

	invalid := func(field string, value interface{}, reason string) error {
		return errFactory.WithData(errors.ErrInvalidConfig, &fieldError{field: field, value: value, reason: reason})
	}

	if _, err := logger.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval)
	}

	durations := []struct {
		field string
		value time.Duration
	}{
		{"cooldown", c.Cooldown},
		{"max_duration", c.MaxDuration},
		{"manual_hold", c.ManualHold},
		{"safety.recovery", c.Safety.Recovery},
		{"history.max_age", c.History.MaxAge},
	}
	for _, d := range durations {
		if d.value < 0 {
			return invalid(d.field, d.value, "must not be negative")
		}
	}

	timeouts := []struct {
		field string
		value time.Duration
	}{
		{"lock.timeout", c.Lock.Timeout},
		{"telemetry.timeout", c.Telemetry.Timeout},
		{"actuator.timeout", c.Actuator.Timeout},
		{"shutdown_timeout", c.ShutdownTimeout},
	}
	for _, d := range timeouts {
		if d.value <= 0 {
			return invalid(d.field, d.value, "must be positive")
		}
	}

	if c.Safety.GPUTempCeiling < 0 || c.Safety.GPUTempCeiling > 150 {
		return invalid("safety.gpu_temp_ceiling", c.Safety.GPUTempCeiling, "must be between 0 and 150")
	}
	if c.Safety.CPUTempCeiling < 0 || c.Safety.CPUTempCeiling > 150 {
		return invalid("safety.cpu_temp_ceiling", c.Safety.CPUTempCeiling, "must be between 0 and 150")
	}
	if c.State.MaxPersistFailures < 1 {
		return invalid("state.max_persist_failures", c.State.MaxPersistFailures, "must be at least 1")
	}
	if c.History.MaxRecords < 0 {
		return invalid("history.max_records", c.History.MaxRecords, "must not be negative")
	}
	if c.StateFile == "" {
		return invalid("state_file", c.StateFile, "must be set")
	}
	if c.GPU.Index < 0 {
		return invalid("gpu.index", c.GPU.Index, "must not be negative")
	}

	switch c.Classifier.Mode {
	case ClassifierThreshold, ClassifierWeighted:
	default:
		return invalid("classifier.mode", c.Classifier.Mode, "must be threshold or weighted")
	}

	for _, t := range c.Classifier.Triggers {
		for _, sig := range t.Signatures {
			if _, ok := c.Signatures[sig]; !ok {
				return invalid("classifier.triggers.signatures", sig, "unknown signature set")
			}
		}
	}
	for _, cat := range c.Classifier.Categories {
		if _, ok := c.Signatures[cat.Signature]; !ok {
			return invalid("classifier.categories.signature", cat.Signature, "unknown signature set")
		}
	}

	return nil
}

// Catalog builds the profile catalog.
func (c *Config) Catalog() (*profile.Catalog, error) {
	catalog, err := profile.NewCatalog(c.DefaultProfile, c.Profiles...)
	if err != nil {
		return nil, errors.New().Wrap(errors.ErrInvalidProfile, err)
	}
	return catalog, nil
}

// NewClassifier builds the configured classifier against catalog.
func (c *Config) NewClassifier(catalog *profile.Catalog) (classify.Classifier, error) {
	var (
		classifier classify.Classifier
		err        error
	)

	switch c.Classifier.Mode {
	case ClassifierWeighted:
		classifier, err = classify.NewWeighted(catalog, c.Classifier.Categories,
			c.Classifier.GPUFallbackProfile, c.Classifier.GPUFallbackUtilization)
	default:
		classifier, err = classify.NewThreshold(catalog, c.Classifier.Triggers, c.Classifier.Priority)
	}
	if err != nil {
		return nil, errors.New().Wrap(errors.ErrInvalidConfig, err)
	}

	return classifier, nil
}

// GateConfig returns the hysteresis and safety settings.
func (c *Config) GateConfig() gate.Config {
	recovery := c.Safety.Recovery
	if recovery == 0 {
		recovery = c.Cooldown
	}

	return gate.Config{
		Cooldown:       c.Cooldown,
		GPUTempCeiling: c.Safety.GPUTempCeiling,
		CPUTempCeiling: c.Safety.CPUTempCeiling,
		Recovery:       recovery,
	}
}
