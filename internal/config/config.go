package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix is the prefix of environment variables read into the config,
// e.g. KNOLREVIEW_DB_PATH sets db_path.
const EnvPrefix = "KNOLREVIEW_"

// Config holds runtime settings. The review algorithm itself has no knobs.
type Config struct {
	ConfigFile string `koanf:"config"`
	DBPath     string `koanf:"db_path" validate:"required"`
	Addr       string `koanf:"addr" validate:"required,hostname_port"`
	ReposDir   string `koanf:"repos_dir" validate:"required"`
	LogLevel   string `koanf:"log_level" validate:"oneof=debug info warn error"`
	LogFormat  string `koanf:"log_format" validate:"oneof=text json"`
	DueLimit   int    `koanf:"due_limit" validate:"gte=0"`

	// One-shot actions; only taken from the command line.
	AddSource string `koanf:"add_source"`
	Sync      bool   `koanf:"sync"`
}

// flagOnlyKeys are dropped from the file and environment layers.
var flagOnlyKeys = []string{"add_source", "sync"}

// Flags registers the command-line flags on fs. Flag defaults are the
// lowest-precedence config layer.
func Flags(fs *pflag.FlagSet) {
	fs.String("config", "", "Path to a YAML config file")
	fs.String("db-path", "knolreview.db", "Path to the SQLite database file")
	fs.String("addr", "localhost:8080", "Address for the HTTP API to listen on")
	fs.String("repos-dir", "repos", "Directory git sources are cloned into")
	fs.String("log-level", "info", "Log level: debug, info, warn or error")
	fs.String("log-format", "text", "Log format: text or json")
	fs.Int("due-limit", 0, "Maximum number of due cards returned at once (0 = no limit)")
	fs.String("add-source", "", "Add a local directory or git URL as a card source and exit")
	fs.Bool("sync", false, "Sync all sources and exit")
}

// Load builds the config from flags, an optional YAML file and the
// environment. Precedence, lowest first: flag defaults, file, environment,
// flags set explicitly on the command line.
func Load(args []string) (*Config, error) {
	fs := pflag.NewFlagSet("knolreview", pflag.ContinueOnError)
	Flags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return LoadFlags(fs)
}

// LoadFlags is Load for an already parsed flag set.
func LoadFlags(fs *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	path, _ := fs.GetString("config")
	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG")
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}
	for _, key := range flagOnlyKeys {
		k.Delete(key)
	}

	// Unchanged flags only fill keys no earlier layer set.
	flagKey := func(f *pflag.Flag) (string, any) {
		return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(fs, f)
	}
	if err := k.Load(posflag.ProviderWithFlag(fs, ".", k, flagKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.ConfigFile = path

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envKey(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
