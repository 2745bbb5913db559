package stream

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfold/tickstream/pkg/errors"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	assert.Equal(t, DefaultEndpoint, opts.Endpoint)
	assert.Equal(t, DefaultHistoryCapacity, opts.HistoryCapacity)
	assert.Equal(t, 0, opts.MaxReconnectAttempts)
	assert.Equal(t, DefaultHeartbeatTimeout, opts.HeartbeatTimeout)
	assert.Equal(t, DefaultCallbackQueueDepth, opts.CallbackQueueDepth)
	assert.Equal(t, DropOldest, opts.OverflowPolicy)
	assert.False(t, opts.RetainHistoryOnClose)
}

func TestWithDefaultsFillsUnsetFields(t *testing.T) {
	opts := Options{Token: "tok"} //nolint:exhaustruct // zero values exercise the defaults
	opts = opts.withDefaults()

	assert.Equal(t, DefaultEndpoint, opts.Endpoint)
	assert.Equal(t, DefaultHistoryCapacity, opts.HistoryCapacity)
	assert.Equal(t, DefaultReconnectMinDelay, opts.ReconnectMinDelay)
	assert.Equal(t, DefaultReconnectMaxDelay, opts.ReconnectMaxDelay)
	assert.Equal(t, DropOldest, opts.OverflowPolicy)
}

func TestValidateRejectsInvalidOptions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{
			name:   "missing token",
			mutate: func(o *Options) { o.Token = "" },
		},
		{
			name:   "invalid endpoint",
			mutate: func(o *Options) { o.Endpoint = "not a url" },
		},
		{
			name:   "zero history capacity",
			mutate: func(o *Options) { o.HistoryCapacity = 0 },
		},
		{
			name:   "negative history capacity",
			mutate: func(o *Options) { o.HistoryCapacity = -5 },
		},
		{
			name:   "negative reconnect attempts",
			mutate: func(o *Options) { o.MaxReconnectAttempts = -1 },
		},
		{
			name:   "zero callback queue depth",
			mutate: func(o *Options) { o.CallbackQueueDepth = 0 },
		},
		{
			name:   "unknown overflow policy",
			mutate: func(o *Options) { o.OverflowPolicy = "drop-random" },
		},
		{
			name:   "per-symbol capacity below one",
			mutate: func(o *Options) { o.HistoryCapacityBySymbol = map[string]int{"AAPL": 0} },
		},
		{
			name: "max delay below min delay",
			mutate: func(o *Options) {
				o.ReconnectMinDelay = time.Second
				o.ReconnectMaxDelay = time.Millisecond
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			opts := DefaultOptions()
			opts.Token = "tok"
			tc.mutate(&opts)

			err := opts.Validate()
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
		})
	}
}

func TestValidateAcceptsDefaultsWithToken(t *testing.T) {
	opts := DefaultOptions()
	opts.Token = "tok"

	assert.NoError(t, opts.Validate())
}

func TestLoadOptions(t *testing.T) {
	content := `
endpoint: wss://stream.example.test/ws
token: file-token
history_capacity: 50
history_capacity_by_symbol:
  AAPL: 100
max_reconnect_attempts: 5
heartbeat_timeout: 45s
reconnect_min_delay: 250ms
reconnect_max_delay: 1m
callback_queue_depth: 512
overflow_policy: drop-newest
retain_history_on_close: true
`

	path := filepath.Join(t.TempDir(), "stream.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	opts, err := LoadOptions(path)
	require.NoError(t, err)

	assert.Equal(t, "wss://stream.example.test/ws", opts.Endpoint)
	assert.Equal(t, "file-token", opts.Token)
	assert.Equal(t, 50, opts.HistoryCapacity)
	assert.Equal(t, 100, opts.HistoryCapacityBySymbol["AAPL"])
	assert.Equal(t, 5, opts.MaxReconnectAttempts)
	assert.Equal(t, 45*time.Second, opts.HeartbeatTimeout)
	assert.Equal(t, 250*time.Millisecond, opts.ReconnectMinDelay)
	assert.Equal(t, time.Minute, opts.ReconnectMaxDelay)
	assert.Equal(t, 512, opts.CallbackQueueDepth)
	assert.Equal(t, DropNewest, opts.OverflowPolicy)
	assert.True(t, opts.RetainHistoryOnClose)
}

func TestLoadOptionsAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.yaml")
	require.NoError(t, os.WriteFile(path, []byte("token: tok\n"), 0o600))

	opts, err := LoadOptions(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultEndpoint, opts.Endpoint)
	assert.Equal(t, DefaultHistoryCapacity, opts.HistoryCapacity)
	assert.Equal(t, DefaultHeartbeatTimeout, opts.HeartbeatTimeout)
}

func TestLoadOptionsRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stream.yaml")
	require.NoError(t, os.WriteFile(path, []byte("token: tok\nheartbeat_timeout: soon\n"), 0o600))

	_, err := LoadOptions(path)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func TestLoadOptionsMissingFile(t *testing.T) {
	_, err := LoadOptions(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func TestOptionsSchema(t *testing.T) {
	schema, err := OptionsSchema()
	require.NoError(t, err)

	assert.Contains(t, schema, "endpoint")
	assert.Contains(t, schema, "historyCapacity")
	assert.Contains(t, schema, "overflowPolicy")
	assert.NotContains(t, schema, "OnError")
}
