package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sagernet/sing-cio/common/channel"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
[log]
level = "debug"

[channel]
high_water_mark = 16384

[connection]
limit = 8
address_limit = 2
read_timeout = "30s"
write_timeout = "1m30s"
linger = "-1s"
no_delay = false

[secure]
psk = "c2VjcmV0LXNlY3JldC1zZWNyZXQ="
replay_filter = "bloomring"
`

func TestDefault(t *testing.T) {
	t.Parallel()
	config := Default()
	require.NoError(t, config.Validate())
	assert.Equal(t, channel.DefaultHighWaterMark, config.Channel.HighWaterMark)
	options := config.TCPOptions()
	assert.True(t, options.NoDelay)
	assert.Zero(t, options.ReadTimeout)
}

func TestDecode(t *testing.T) {
	t.Parallel()
	config, err := Decode(testConfig)
	require.NoError(t, err)
	assert.Equal(t, "debug", config.Log.Level)
	assert.Equal(t, 16384, config.Channel.HighWaterMark)
	assert.Equal(t, 8, config.Connection.Limit)
	assert.Equal(t, 2, config.Connection.AddressLimit)
	assert.Equal(t, 10*time.Second, config.Connection.ConnectTimeout.Build())

	options := config.TCPOptions()
	assert.False(t, options.NoDelay)
	assert.True(t, options.KeepAlive)
	assert.Equal(t, 30*time.Second, options.ReadTimeout)
	assert.Equal(t, 90*time.Second, options.WriteTimeout)
	assert.Equal(t, -time.Second, options.Linger)

	key, err := config.Secure.Key()
	require.NoError(t, err)
	assert.Equal(t, "secret-secret-secret", string(key))
	filter, err := config.Secure.NewReplayFilter()
	require.NoError(t, err)
	assert.NotNil(t, filter)
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()
	for name, content := range map[string]string{
		"unknown key":    "[connection]\nlimits = 4\n",
		"bad duration":   "[connection]\nread_timeout = \"soon\"\n",
		"address limit":  "[connection]\nlimit = 2\naddress_limit = 3\n",
		"log level":      "[log]\nlevel = \"loud\"\n",
		"bad psk":        "[secure]\npsk = \"%%%\"\n",
		"replay filter":  "[secure]\nreplay_filter = \"lru\"\n",
		"high water":     "[channel]\nhigh_water_mark = 0\n",
		"negative delay": "[connection]\nread_timeout = \"-1s\"\n",
	} {
		_, err := Decode(content)
		assert.Error(t, err, name)
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "cio.toml")
	require.NoError(t, os.WriteFile(path, []byte(testConfig), 0o644))
	config, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8, config.Connection.Limit)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestDurationText(t *testing.T) {
	t.Parallel()
	text, err := Duration(90 * time.Second).MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))
	var duration Duration
	require.NoError(t, duration.UnmarshalText(text))
	assert.Equal(t, 90*time.Second, duration.Build())
}
