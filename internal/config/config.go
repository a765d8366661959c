package config

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Mode     string `mapstructure:"mode"`
	LogLevel string `mapstructure:"log_level"`

	Port           int           `mapstructure:"port"`
	HTTPPort       int           `mapstructure:"http_port"`
	SendQueueLimit int           `mapstructure:"send_queue_limit"`
	RoomIDAttempts int           `mapstructure:"room_id_attempts"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`

	// RoomRequestLimit caps JOIN_ROOM and CREATE_ROOM per session per RoomRequestWindow; 0 disables.
	RoomRequestLimit  int           `mapstructure:"room_request_limit"`
	RoomRequestWindow time.Duration `mapstructure:"room_request_window"`

	Client ClientConfig `mapstructure:"client"`
	Audio  AudioConfig  `mapstructure:"audio"`
}

type ClientConfig struct {
	Host              string        `mapstructure:"host"`
	ReconnectInterval time.Duration `mapstructure:"reconnect_interval"`
	DialTimeout       time.Duration `mapstructure:"dial_timeout"`
}

type AudioConfig struct {
	Codec           string        `mapstructure:"codec"`
	FrameSize       int           `mapstructure:"frame_size"`
	Amplification   float64       `mapstructure:"amplification"`
	Threshold       float64       `mapstructure:"threshold"`
	TalkGrace       time.Duration `mapstructure:"talk_grace"`
	SpeakingTimeout time.Duration `mapstructure:"speaking_timeout"`
	EvictAfter      time.Duration `mapstructure:"evict_after"`
	IndicatorPoll   time.Duration `mapstructure:"indicator_poll"`
}

// flagKeys maps command line flags onto config keys.
var flagKeys = map[string]string{
	"port":      "port",
	"http-port": "http_port",
	"log-level": "log_level",
	"host":      "client.host",
	"codec":     "audio.codec",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("log_level", "info")
	v.SetDefault("port", 80)
	v.SetDefault("http_port", 8080)
	v.SetDefault("send_queue_limit", 4096)
	v.SetDefault("room_id_attempts", 1000)
	v.SetDefault("room_request_limit", 5)
	v.SetDefault("room_request_window", "10s")
	v.SetDefault("write_timeout", "5s")

	v.SetDefault("client.host", "localhost")
	v.SetDefault("client.reconnect_interval", "10s")
	v.SetDefault("client.dial_timeout", "5s")

	v.SetDefault("audio.codec", "zstd")
	v.SetDefault("audio.frame_size", 10000)
	v.SetDefault("audio.amplification", 1.0)
	v.SetDefault("audio.threshold", 0.5)
	v.SetDefault("audio.talk_grace", "50ms")
	v.SetDefault("audio.speaking_timeout", "1s")
	v.SetDefault("audio.evict_after", "5m")
	v.SetDefault("audio.indicator_poll", "100ms")
}

// Load reads config/config.<CONFIG_ENV>.yaml (env defaults to dev) over the
// built-in defaults. Flags that were set explicitly win over both.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Int("http_port", cfg.HTTPPort).Msg("config ready")
	return &cfg, nil
}

// Default returns the built-in configuration without reading files or flags.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic("config: defaults do not decode: " + err.Error())
	}
	return &cfg
}
