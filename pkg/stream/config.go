package stream

import (
	"encoding/json"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"

	"github.com/quantfold/tickstream/pkg/errors"
)

// OverflowPolicy selects what happens when the callback queue is full.
type OverflowPolicy string

const (
	// DropOldest evicts the oldest queued event to make room. Default.
	DropOldest OverflowPolicy = "drop-oldest"
	// DropNewest discards the incoming event.
	DropNewest OverflowPolicy = "drop-newest"
)

// Default configuration values.
const (
	DefaultEndpoint           = "wss://ws.finnhub.io"
	DefaultHistoryCapacity    = 30
	DefaultHeartbeatTimeout   = 30 * time.Second
	DefaultDialTimeout        = 10 * time.Second
	DefaultReconnectMinDelay  = 500 * time.Millisecond
	DefaultReconnectMaxDelay  = 30 * time.Second
	DefaultCallbackQueueDepth = 256
)

// Options configures a Subscription.
type Options struct {
	// Endpoint is the websocket URL of the provider.
	Endpoint string `json:"endpoint" yaml:"endpoint" jsonschema:"title=Endpoint,description=Websocket URL of the market data provider" validate:"required,url"`

	// Token is the opaque API credential, appended to the connection URI.
	Token string `json:"token" yaml:"token" jsonschema:"title=API Token,description=Provider API token,required" validate:"required"`

	// HistoryCapacity bounds the rolling history length per symbol. It
	// trades memory per symbol against the available rolling window.
	HistoryCapacity int `json:"historyCapacity" yaml:"history_capacity" jsonschema:"title=History Capacity,description=Maximum ticks retained per symbol" validate:"gte=1"`

	// HistoryCapacityBySymbol overrides HistoryCapacity for specific symbols.
	HistoryCapacityBySymbol map[string]int `json:"historyCapacityBySymbol,omitempty" yaml:"history_capacity_by_symbol,omitempty" jsonschema:"title=Per-Symbol History Capacity" validate:"omitempty,dive,gte=1"`

	// MaxReconnectAttempts caps consecutive reconnect attempts. 0 retries
	// forever.
	MaxReconnectAttempts int `json:"maxReconnectAttempts" yaml:"max_reconnect_attempts" jsonschema:"title=Max Reconnect Attempts,description=Consecutive reconnect attempts before giving up (0 = unlimited)" validate:"gte=0"`

	// HeartbeatTimeout is how long the connection may stay silent before it
	// is treated as dead and reconnected. 0 disables the liveness check.
	HeartbeatTimeout time.Duration `json:"heartbeatTimeout" yaml:"heartbeat_timeout" jsonschema:"title=Heartbeat Timeout" validate:"gte=0"`

	// DialTimeout bounds each connection attempt.
	DialTimeout time.Duration `json:"dialTimeout" yaml:"dial_timeout" jsonschema:"title=Dial Timeout" validate:"gte=0"`

	// ReconnectMinDelay is the initial reconnect backoff delay.
	ReconnectMinDelay time.Duration `json:"reconnectMinDelay" yaml:"reconnect_min_delay" jsonschema:"title=Reconnect Min Delay" validate:"gte=0"`

	// ReconnectMaxDelay caps the exponential reconnect backoff.
	ReconnectMaxDelay time.Duration `json:"reconnectMaxDelay" yaml:"reconnect_max_delay" jsonschema:"title=Reconnect Max Delay" validate:"gte=0"`

	// CallbackQueueDepth bounds the queue decoupling the receive loop from
	// handler execution.
	CallbackQueueDepth int `json:"callbackQueueDepth" yaml:"callback_queue_depth" jsonschema:"title=Callback Queue Depth" validate:"gte=1"`

	// OverflowPolicy selects the drop policy when the callback queue is full.
	OverflowPolicy OverflowPolicy `json:"overflowPolicy" yaml:"overflow_policy" jsonschema:"title=Overflow Policy,enum=drop-oldest,enum=drop-newest" validate:"omitempty,oneof=drop-oldest drop-newest"`

	// RetainHistoryOnClose keeps history snapshots readable after Close.
	RetainHistoryOnClose bool `json:"retainHistoryOnClose" yaml:"retain_history_on_close" jsonschema:"title=Retain History On Close"`

	// OnError observes non-fatal and fatal errors (decode, protocol,
	// callback, transport). Distinct from the tick callback so an error for
	// one symbol never interrupts delivery for others.
	OnError func(error) `json:"-" yaml:"-"`
}

// DefaultOptions returns Options populated with the default values.
// Token must still be set by the caller.
func DefaultOptions() Options {
	return Options{
		Endpoint:                DefaultEndpoint,
		Token:                   "",
		HistoryCapacity:         DefaultHistoryCapacity,
		HistoryCapacityBySymbol: nil,
		MaxReconnectAttempts:    0,
		HeartbeatTimeout:        DefaultHeartbeatTimeout,
		DialTimeout:             DefaultDialTimeout,
		ReconnectMinDelay:       DefaultReconnectMinDelay,
		ReconnectMaxDelay:       DefaultReconnectMaxDelay,
		CallbackQueueDepth:      DefaultCallbackQueueDepth,
		OverflowPolicy:          DropOldest,
		RetainHistoryOnClose:    false,
		OnError:                 nil,
	}
}

// withDefaults fills unset fields with the default values.
func (o Options) withDefaults() Options {
	if o.Endpoint == "" {
		o.Endpoint = DefaultEndpoint
	}

	if o.HistoryCapacity == 0 {
		o.HistoryCapacity = DefaultHistoryCapacity
	}

	if o.HeartbeatTimeout == 0 {
		o.HeartbeatTimeout = DefaultHeartbeatTimeout
	}

	if o.DialTimeout == 0 {
		o.DialTimeout = DefaultDialTimeout
	}

	if o.ReconnectMinDelay == 0 {
		o.ReconnectMinDelay = DefaultReconnectMinDelay
	}

	if o.ReconnectMaxDelay == 0 {
		o.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}

	if o.CallbackQueueDepth == 0 {
		o.CallbackQueueDepth = DefaultCallbackQueueDepth
	}

	if o.OverflowPolicy == "" {
		o.OverflowPolicy = DropOldest
	}

	return o
}

// Validate validates the options. It fails fast, before any connection
// attempt is made.
func (o *Options) Validate() error {
	validate := validator.New()
	if err := validate.Struct(o); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid options", err)
	}

	if o.ReconnectMaxDelay < o.ReconnectMinDelay {
		return errors.New(errors.ErrCodeInvalidConfiguration, "reconnect max delay must not be below min delay")
	}

	return nil
}

// optionsFile is the YAML file shape; durations are human-readable strings.
type optionsFile struct {
	Endpoint                string         `yaml:"endpoint"`
	Token                   string         `yaml:"token"`
	HistoryCapacity         int            `yaml:"history_capacity"`
	HistoryCapacityBySymbol map[string]int `yaml:"history_capacity_by_symbol"`
	MaxReconnectAttempts    int            `yaml:"max_reconnect_attempts"`
	HeartbeatTimeout        string         `yaml:"heartbeat_timeout"`
	DialTimeout             string         `yaml:"dial_timeout"`
	ReconnectMinDelay       string         `yaml:"reconnect_min_delay"`
	ReconnectMaxDelay       string         `yaml:"reconnect_max_delay"`
	CallbackQueueDepth      int            `yaml:"callback_queue_depth"`
	OverflowPolicy          string         `yaml:"overflow_policy"`
	RetainHistoryOnClose    bool           `yaml:"retain_history_on_close"`
}

// LoadOptions reads options from a YAML file, applies defaults and
// validates the result.
func LoadOptions(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read options file: %s", path)
	}

	var file optionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Options{}, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse options file", err)
	}

	opts := Options{
		Endpoint:                file.Endpoint,
		Token:                   file.Token,
		HistoryCapacity:         file.HistoryCapacity,
		HistoryCapacityBySymbol: file.HistoryCapacityBySymbol,
		MaxReconnectAttempts:    file.MaxReconnectAttempts,
		HeartbeatTimeout:        0,
		DialTimeout:             0,
		ReconnectMinDelay:       0,
		ReconnectMaxDelay:       0,
		CallbackQueueDepth:      file.CallbackQueueDepth,
		OverflowPolicy:          OverflowPolicy(file.OverflowPolicy),
		RetainHistoryOnClose:    file.RetainHistoryOnClose,
		OnError:                 nil,
	}

	durations := []struct {
		raw  string
		name string
		dst  *time.Duration
	}{
		{file.HeartbeatTimeout, "heartbeat_timeout", &opts.HeartbeatTimeout},
		{file.DialTimeout, "dial_timeout", &opts.DialTimeout},
		{file.ReconnectMinDelay, "reconnect_min_delay", &opts.ReconnectMinDelay},
		{file.ReconnectMaxDelay, "reconnect_max_delay", &opts.ReconnectMaxDelay},
	}

	for _, d := range durations {
		if d.raw == "" {
			continue
		}

		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return Options{}, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "invalid duration for %s: %s", d.name, d.raw)
		}

		*d.dst = parsed
	}

	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return Options{}, err
	}

	return opts, nil
}

// OptionsSchema returns the JSON schema of Options, for editor tooling and
// config validation outside this process.
func OptionsSchema() (string, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = true
	schema := r.Reflect(Options{}) //nolint:exhaustruct // empty struct is intentional for schema generation

	data, err := json.Marshal(schema)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to marshal options schema", err)
	}

	return string(data), nil
}
