// Package config charge la configuration depuis les défauts, un fichier
// optionnel, un .env, les variables PREDICT_* et les flags.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/Guilhem-Bonnet/prediction-runner/internal/domain"
)

const EnvPrefix = "PREDICT"

type Config struct {
	ServerURL string `mapstructure:"server_url" validate:"required,url"`
	Addr      string `mapstructure:"addr" validate:"required,hostname_port"`
	DBPath    string `mapstructure:"db_path" validate:"required"`
	// ClientID vide = un identifiant est généré au démarrage.
	ClientID string `mapstructure:"client_id"`

	PollInterval      time.Duration `mapstructure:"poll_interval" validate:"gte=0"`
	EstimatedDuration time.Duration `mapstructure:"estimated_duration" validate:"gte=0"`
	ProgressCap       float64       `mapstructure:"progress_cap" validate:"gte=0,lte=1"`

	HTTPTimeout     time.Duration `mapstructure:"http_timeout" validate:"gt=0"`
	SubmitRate      float64       `mapstructure:"submit_rate" validate:"gte=0"`
	BreakerFailures uint32        `mapstructure:"breaker_failures"`

	LogLevel string `mapstructure:"log_level" validate:"oneof=trace debug info warn error"`
	Trace    bool   `mapstructure:"trace"`
}

func Default() Config {
	return Config{
		ServerURL:       "http://127.0.0.1:8000",
		Addr:            "127.0.0.1:8080",
		DBPath:          "predict.db",
		HTTPTimeout:     15 * time.Second,
		SubmitRate:      1,
		BreakerFailures: 5,
		LogLevel:        "info",
	}
}

// New prépare une instance viper avec les défauts et l'environnement PREDICT_*.
func New() *viper.Viper {
	v := viper.New()
	def := Default()
	v.SetDefault("server_url", def.ServerURL)
	v.SetDefault("addr", def.Addr)
	v.SetDefault("db_path", def.DBPath)
	v.SetDefault("client_id", def.ClientID)
	v.SetDefault("poll_interval", def.PollInterval)
	v.SetDefault("estimated_duration", def.EstimatedDuration)
	v.SetDefault("progress_cap", def.ProgressCap)
	v.SetDefault("http_timeout", def.HTTPTimeout)
	v.SetDefault("submit_rate", def.SubmitRate)
	v.SetDefault("breaker_failures", def.BreakerFailures)
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("trace", def.Trace)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags relie chaque flag à la clé viper du même nom (tirets → underscores).
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	var result error
	flags.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if err := v.BindPFlag(key, f); err != nil && result == nil {
			result = errors.Wrapf(err, "binding flag %q", f.Name)
		}
	})
	return result
}

// Load lit .env (si présent), le fichier pointé par configFile (si non vide),
// puis décode et valide.
func Load(v *viper.Viper, configFile string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, errors.Wrap(err, "loading .env")
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "reading config file %q", configFile)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decoding config")
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	return nil
}

// Level renvoie le niveau zerolog correspondant à LogLevel (info par défaut).
func (c Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Overlay applique les valeurs non nulles de la config par-dessus les réglages stockés.
func (c Config) Overlay(s domain.Settings) domain.Settings {
	if c.PollInterval > 0 {
		s.PollIntervalMs = c.PollInterval.Milliseconds()
	}
	if c.EstimatedDuration > 0 {
		s.EstimatedDurationSec = int(c.EstimatedDuration / time.Second)
	}
	if c.ProgressCap > 0 {
		s.ProgressCap = c.ProgressCap
	}
	return s
}
