package internal

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/afero"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/geoyogesh/csvscan/internal/csvformat"
)

const EnvPrefix = "CSVSCAN"

type CsvScanConfig struct {
	AppName string `mapstructure:"app_name"`

	Format csvformat.Options `mapstructure:"format"`

	Server struct {
		Addr            string        `mapstructure:"addr"`
		SchemaCacheSize int           `mapstructure:"schema_cache_size"`
		CatalogFile     string        `mapstructure:"catalog_file"`
		IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	} `mapstructure:"server"`

	Source struct {
		Root         string        `mapstructure:"root"`
		HTTPTimeout  time.Duration `mapstructure:"http_timeout"`
		HTTPMaxBytes int64         `mapstructure:"http_max_bytes"`
		Schemes      []string      `mapstructure:"schemes"`
	} `mapstructure:"source"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

// flagKeys maps command-line flag names onto config keys.
var flagKeys = map[string]string{
	"addr":         "server.addr",
	"catalog":      "server.catalog_file",
	"root":         "source.root",
	"log-level":    "log.level",
	"log-format":   "log.format",
	"delimiter":    "format.delimiter",
	"no-header":    "format.has_header",
	"infer-max":    "format.schema_infer_max_rec",
	"batch-size":   "format.batch_size",
	"http-timeout": "source.http_timeout",
}

func setDefaults(v *viper.Viper) {
	def := csvformat.DefaultOptions()

	v.SetDefault("app_name", "csvscan")

	v.SetDefault("format.has_header", def.HasHeader)
	v.SetDefault("format.delimiter", string(def.Delimiter))
	v.SetDefault("format.schema_infer_max_rec", def.SchemaInferMaxRec)
	v.SetDefault("format.batch_size", def.BatchSize)
	v.SetDefault("format.file_extension", def.FileExtension)

	v.SetDefault("server.addr", "127.0.0.1:5454")
	v.SetDefault("server.schema_cache_size", 128)
	v.SetDefault("server.catalog_file", "")
	v.SetDefault("server.idle_timeout", 5*time.Minute)

	v.SetDefault("source.root", "")
	v.SetDefault("source.http_timeout", 30*time.Second)
	v.SetDefault("source.http_max_bytes", int64(1<<30))
	v.SetDefault("source.schemes", []string{"file", "http", "https"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// LoadConfig layers defaults, the YAML file at path (optional when empty),
// CSVSCAN_* environment variables and changed flags, in increasing priority.
func LoadConfig(path string, flags *pflag.FlagSet) (*CsvScanConfig, error) {
	return LoadConfigFS(afero.NewOsFs(), path, flags)
}

// LoadConfigFS is LoadConfig reading the config file from fs.
func LoadConfigFS(fs afero.Fs, path string, flags *pflag.FlagSet) (*CsvScanConfig, error) {
	v := viper.New()
	v.SetFs(fs)
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		if err := bindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	var cfg CsvScanConfig
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		delimiterHook,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// --no-header is the inverse of has_header
	if flags != nil {
		if f := flags.Lookup("no-header"); f != nil && f.Changed {
			cfg.Format.HasHeader = f.Value.String() != "true"
		}
	}

	if err := cfg.Format.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &cfg, nil
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil || name == "no-header" {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// delimiterHook decodes a delimiter written as text ("\t", "tab", ";") into its byte.
func delimiterHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to.Kind() != reflect.Uint8 {
		return data, nil
	}
	return csvformat.ParseDelimiter(data.(string))
}
