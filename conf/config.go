package conf

import (
	"encoding/base64"
	"sort"
	"strings"
	"time"

	"github.com/sagernet/sing-cio/common/channel"
	E "github.com/sagernet/sing-cio/common/exceptions"
	"github.com/sagernet/sing-cio/common/replay"
	"github.com/sagernet/sing-cio/transport/tcp"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Log        LogConfig        `toml:"log"`
	Channel    ChannelConfig    `toml:"channel"`
	Connection ConnectionConfig `toml:"connection"`
	Secure     SecureConfig     `toml:"secure"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type ChannelConfig struct {
	HighWaterMark int `toml:"high_water_mark"`
}

type ConnectionConfig struct {
	Limit             int      `toml:"limit"`
	AddressLimit      int      `toml:"address_limit"`
	ConnectTimeout    Duration `toml:"connect_timeout"`
	ReadTimeout       Duration `toml:"read_timeout"`
	WriteTimeout      Duration `toml:"write_timeout"`
	NoDelay           bool     `toml:"no_delay"`
	KeepAlive         bool     `toml:"keep_alive"`
	Linger            Duration `toml:"linger"`
	ReceiveBufferSize int      `toml:"receive_buffer_size"`
	SendBufferSize    int      `toml:"send_buffer_size"`
	Backlog           int      `toml:"backlog"`
}

type SecureConfig struct {
	// PSK is encoded with standard Base64.
	PSK            string   `toml:"psk"`
	ReplayFilter   string   `toml:"replay_filter"`
	ReplayInterval Duration `toml:"replay_interval"`
}

// Duration is a time.Duration written as a string such as "30s".
type Duration time.Duration

func (d Duration) Build() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	duration, err := time.ParseDuration(string(text))
	if err != nil {
		return E.Cause(err, "parse duration")
	}
	*d = Duration(duration)
	return nil
}

func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
		},
		Channel: ChannelConfig{
			HighWaterMark: channel.DefaultHighWaterMark,
		},
		Connection: ConnectionConfig{
			Limit:          1024,
			AddressLimit:   64,
			ConnectTimeout: Duration(10 * time.Second),
			NoDelay:        true,
			KeepAlive:      true,
		},
		Secure: SecureConfig{
			ReplayFilter:   replay.KindCuckoo,
			ReplayInterval: Duration(time.Minute),
		},
	}
}

// Load reads path over the defaults and validates the result.
func Load(path string) (*Config, error) {
	config := Default()
	metadata, err := toml.DecodeFile(path, config)
	if err != nil {
		return nil, E.Cause(err, "decode config ", path)
	}
	return config, checkDecoded(metadata, config)
}

// Decode parses content over the defaults and validates the result.
func Decode(content string) (*Config, error) {
	config := Default()
	metadata, err := toml.Decode(content, config)
	if err != nil {
		return nil, E.Cause(err, "decode config")
	}
	return config, checkDecoded(metadata, config)
}

func checkDecoded(metadata toml.MetaData, config *Config) error {
	if undecoded := metadata.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		sort.Strings(keys)
		return E.New("unknown config keys: ", strings.Join(keys, ", "))
	}
	return config.Validate()
}

func (c *Config) Validate() error {
	var errors []error
	if c.Log.Level != "" {
		_, err := logrus.ParseLevel(c.Log.Level)
		if err != nil {
			errors = append(errors, E.Cause(err, "log.level"))
		}
	}
	if c.Channel.HighWaterMark <= 0 {
		errors = append(errors, E.New("channel.high_water_mark must be positive"))
	}
	if c.Connection.Limit <= 0 {
		errors = append(errors, E.New("connection.limit must be positive"))
	}
	if c.Connection.AddressLimit <= 0 || c.Connection.AddressLimit > c.Connection.Limit {
		errors = append(errors, E.New("connection.address_limit must be within 1..connection.limit"))
	}
	for name, duration := range map[string]Duration{
		"connection.connect_timeout": c.Connection.ConnectTimeout,
		"connection.read_timeout":    c.Connection.ReadTimeout,
		"connection.write_timeout":   c.Connection.WriteTimeout,
		"secure.replay_interval":     c.Secure.ReplayInterval,
	} {
		if duration < 0 {
			errors = append(errors, E.New(name, " must not be negative"))
		}
	}
	if c.Secure.PSK != "" {
		_, err := c.Secure.Key()
		if err != nil {
			errors = append(errors, err)
		}
	}
	_, err := replay.New(c.Secure.ReplayFilter, c.Secure.ReplayInterval.Build())
	if err != nil {
		errors = append(errors, E.Cause(err, "secure.replay_filter"))
	}
	return E.Errors(errors...)
}

func (c *Config) TCPOptions() tcp.Options {
	options := tcp.DefaultOptions()
	options.NoDelay = c.Connection.NoDelay
	options.KeepAlive = c.Connection.KeepAlive
	options.Linger = c.Connection.Linger.Build()
	options.ReceiveBufferSize = c.Connection.ReceiveBufferSize
	options.SendBufferSize = c.Connection.SendBufferSize
	options.ReadTimeout = c.Connection.ReadTimeout.Build()
	options.WriteTimeout = c.Connection.WriteTimeout.Build()
	options.Backlog = c.Connection.Backlog
	return options
}

func (c SecureConfig) Key() ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(c.PSK)
	if err != nil {
		return nil, E.Cause(err, "decode secure.psk")
	}
	if len(key) == 0 {
		return nil, E.New("secure.psk is empty")
	}
	return key, nil
}

func (c SecureConfig) NewReplayFilter() (replay.Filter, error) {
	return replay.New(c.ReplayFilter, c.ReplayInterval.Build())
}
