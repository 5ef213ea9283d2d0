package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"codeberg.org/mutker/mccli/internal/errors"
	"codeberg.org/mutker/mccli/internal/export"
	"codeberg.org/mutker/mccli/internal/sampler"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	AppName          = "mccli"
	DefaultEnvPrefix = "MCCLI"

	configName = "mccli"
	configType = "toml"

	DefaultRate        = 20.0
	DefaultSweepRate   = 20.0
	DefaultBaudRate    = 115200
	DefaultReadTimeout = 100 * time.Millisecond
	DefaultOutputDir   = "."
	DefaultLogLevel    = string(LogLevelWarning)

	// SimulatedEndpoint selects the simulated ESC instead of a serial port.
	SimulatedEndpoint = "dummy"
)

const (
	keyRate            = "rate"
	keySweepRate       = "sweep_rate"
	keyBaudRate        = "baud"
	keyReadTimeout     = "read_timeout"
	keyOutputDir       = "output_dir"
	keyFields          = "fields"
	keyIncludeCommands = "include_commands"
	keyMomentOfInertia = "moment_of_inertia"
	keyLogLevel        = "log_level"
	keyDebug           = "debug"
	keyVerbose         = "verbose"
)

type Config struct {
	ESCEndpoint  string `mapstructure:"-"`
	DynoEndpoint string `mapstructure:"-"`

	Rate            float64       `mapstructure:"rate"`
	SweepRate       float64       `mapstructure:"sweep_rate"`
	BaudRate        int           `mapstructure:"baud"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	OutputDir       string        `mapstructure:"output_dir"`
	Fields          []string      `mapstructure:"fields"`
	IncludeCommands bool          `mapstructure:"include_commands"`
	MomentOfInertia float64       `mapstructure:"moment_of_inertia"`
	LogLevel        string        `mapstructure:"log_level"`
	Debug           bool          `mapstructure:"debug"`
	Verbose         bool          `mapstructure:"verbose"`

	// ConfigFile is the file that was read, if any.
	ConfigFile string `mapstructure:"-"`

	hasMomentOfInertia bool
}

// Inertia returns the configured moment of inertia, or nil when none was
// given anywhere.
func (c *Config) Inertia() *float64 {
	if !c.hasMomentOfInertia {
		return nil
	}
	moi := c.MomentOfInertia
	return &moi
}

// EffectiveLogLevel applies --debug and --verbose on top of log_level.
func (c *Config) EffectiveLogLevel() string {
	switch {
	case c.Debug:
		return string(LogLevelDebug)
	case c.Verbose:
		return string(LogLevelInfo)
	default:
		return c.LogLevel
	}
}

// Simulated reports whether the ESC endpoint names the simulated device.
func (c *Config) Simulated() bool {
	return c.ESCEndpoint == SimulatedEndpoint
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet(AppName, pflag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.SortFlags = false

	fs.String("config", "", "Path to a TOML configuration file")
	fs.Float64(keyRate, DefaultRate, "Telemetry sampling rate in Hz")
	fs.Float64("sweep-rate", DefaultSweepRate, "Duty update rate of sweep_duty in Hz")
	fs.Int(keyBaudRate, DefaultBaudRate, "Serial baud rate of the ESC link")
	fs.Duration("read-timeout", DefaultReadTimeout, "Serial read timeout of the ESC link")
	fs.String("output-dir", DefaultOutputDir, "Directory for the CSV report")
	fs.StringSlice(keyFields, export.DefaultFields(), "Comma-separated CSV columns")
	fs.Bool("include-commands", false, "Write command markers as comment lines in the report")
	fs.Float64("moment-of-inertia", 0, "Rotor moment of inertia in kg*m^2, enables motor_torque")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	fs.Bool(keyDebug, false, "Enable debugging mode")
	fs.Bool(keyVerbose, false, "Enable verbose logging")

	return fs
}

// Usage writes command line help to w.
func Usage(w io.Writer) {
	fmt.Fprintf(w, "Usage: %s [flags] <esc-endpoint> <dyno-endpoint>\n\n", AppName)
	fmt.Fprintf(w, "Use %q as the ESC endpoint to run against a simulated controller.\n\n", SimulatedEndpoint)
	fmt.Fprintf(w, "Flags:\n%s", newFlagSet().FlagUsages())
}

// Load resolves the configuration from defaults, the config file, the
// environment and args, in increasing order of precedence. args excludes
// the program name.
func Load(args []string, opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := options{envPrefix: DefaultEnvPrefix}
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, errFactory.WithMessage(errors.ErrUsage, "help requested")
		}
		return nil, errFactory.Wrap(errors.ErrUsage, err)
	}

	positional := fs.Args()
	if len(positional) != 2 {
		return nil, errFactory.WithMessage(errors.ErrUsage,
			fmt.Sprintf("expected <esc-endpoint> <dyno-endpoint>, got %d argument(s)", len(positional)))
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	// no default, so AutomaticEnv alone would not surface it to Unmarshal
	if err := v.BindEnv(keyMomentOfInertia); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	if err := bindFlags(v, fs); err != nil {
		return nil, err
	}

	configFile, err := readConfigFile(v, fs, o)
	if err != nil {
		return nil, err
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	config.ESCEndpoint = positional[0]
	config.DynoEndpoint = positional[1]
	config.ConfigFile = configFile
	config.hasMomentOfInertia = v.IsSet(keyMomentOfInertia)
	config.LogLevel = strings.ToLower(config.LogLevel)
	if config.LogLevel == "warn" {
		config.LogLevel = string(LogLevelWarning)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(keyRate, DefaultRate)
	v.SetDefault(keySweepRate, DefaultSweepRate)
	v.SetDefault(keyBaudRate, DefaultBaudRate)
	v.SetDefault(keyReadTimeout, DefaultReadTimeout)
	v.SetDefault(keyOutputDir, DefaultOutputDir)
	v.SetDefault(keyFields, export.DefaultFields())
	v.SetDefault(keyIncludeCommands, false)
	v.SetDefault(keyLogLevel, DefaultLogLevel)
	v.SetDefault(keyDebug, false)
	v.SetDefault(keyVerbose, false)
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	errFactory := errors.New()

	bindings := map[string]string{
		keyRate:            keyRate,
		keySweepRate:       "sweep-rate",
		keyBaudRate:        keyBaudRate,
		keyReadTimeout:     "read-timeout",
		keyOutputDir:       "output-dir",
		keyFields:          keyFields,
		keyIncludeCommands: "include-commands",
		keyMomentOfInertia: "moment-of-inertia",
		keyLogLevel:        "log-level",
		keyDebug:           keyDebug,
		keyVerbose:         keyVerbose,
	}

	for key, flag := range bindings {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	return nil
}

// readConfigFile reads an explicitly named file, or the first mccli.toml
// found in the search path. Only a missing file from the search path is
// tolerated.
func readConfigFile(v *viper.Viper, fs *pflag.FlagSet, o options) (string, error) {
	errFactory := errors.New()

	path := o.configPath
	if flagPath, _ := fs.GetString("config"); flagPath != "" {
		path = flagPath
	}
	if path == "" {
		path = os.Getenv(o.envPrefix + "_CONFIG")
	}

	v.SetConfigType(configType)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return "", errFactory.Wrap(errors.ErrReadConfig, err)
		}
		return v.ConfigFileUsed(), nil
	}

	v.SetConfigName(configName)
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", AppName))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return "", nil
		}
		return "", errFactory.Wrap(errors.ErrReadConfig, err)
	}

	return v.ConfigFileUsed(), nil
}

// Validate checks value ranges. Field names are checked by the exporter.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if !sampler.ValidRate(c.Rate) {
		return errFactory.WithMessage(errors.ErrInvalidRate,
			fmt.Sprintf("rate must be positive and at most %g Hz, got %v", sampler.MaxRate, c.Rate))
	}
	if !sampler.ValidRate(c.SweepRate) {
		return errFactory.WithMessage(errors.ErrInvalidRate,
			fmt.Sprintf("sweep rate must be positive and at most %g Hz, got %v", sampler.MaxRate, c.SweepRate))
	}
	if c.BaudRate <= 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, fmt.Sprintf("baud rate must be positive, got %d", c.BaudRate))
	}
	if c.ReadTimeout <= 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, fmt.Sprintf("read timeout must be positive, got %s", c.ReadTimeout))
	}
	if c.MomentOfInertia < 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig,
			fmt.Sprintf("moment of inertia must not be negative, got %v", c.MomentOfInertia))
	}
	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}
	if len(c.Fields) == 0 {
		return errFactory.WithMessage(errors.ErrInvalidConfig, "at least one report field is required")
	}

	return nil
}
