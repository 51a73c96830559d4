// Package config loads service settings from defaults, an optional file and
// WALKROUTES_* environment variables, in increasing priority.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. WALKROUTES_SERVER_ADDR.
const EnvPrefix = "WALKROUTES"

type Config struct {
	Server   Server   `mapstructure:"server"`
	Overpass Overpass `mapstructure:"overpass"`
	Geodata  Geodata  `mapstructure:"geodata"`
	Metrics  Metrics  `mapstructure:"metrics"`
	Log      Log      `mapstructure:"log"`
	Seed     bool     `mapstructure:"seed"`
}

type Server struct {
	Addr           string        `mapstructure:"addr"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxConcurrent  int           `mapstructure:"max_concurrent"`
	CORSOrigin     string        `mapstructure:"cors_origin"`
}

type Overpass struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Geodata selects an offline PBF extract instead of Overpass when PBFPath is set.
type Geodata struct {
	PBFPath string `mapstructure:"pbf_path"`
}

type Metrics struct {
	ClassifyWorkers int `mapstructure:"classify_workers"`
}

type Log struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.request_timeout", 45*time.Second)
	v.SetDefault("server.max_concurrent", 0) // 0 means 2×NumCPU
	v.SetDefault("server.cors_origin", "")
	v.SetDefault("overpass.url", "https://overpass-api.de/api/interpreter")
	v.SetDefault("overpass.timeout", 30*time.Second)
	v.SetDefault("geodata.pbf_path", "")
	v.SetDefault("metrics.classify_workers", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("seed", true)
}

// Load reads configuration. path may be empty, in which case only defaults
// and the environment apply.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}
