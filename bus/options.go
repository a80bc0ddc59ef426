package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/GabrielCarpr/mediator/bus/message"
	"github.com/GabrielCarpr/mediator/log"
	"github.com/GabrielCarpr/mediator/resilience"
	"github.com/mitchellh/mapstructure"
)

// Options is the file or map based configuration of a bus
type Options struct {
	EnableLogging       bool   `toml:"enable_logging" mapstructure:"enable_logging"`
	EnableRetry         bool   `toml:"enable_retry" mapstructure:"enable_retry"`
	RetryCount          int    `toml:"retry_count" mapstructure:"retry_count"`
	EnablePolicy        bool   `toml:"enable_policy" mapstructure:"enable_policy"`
	PolicyRetryCount    int    `toml:"policy_retry_count" mapstructure:"policy_retry_count"`
	EventPublisher      string `toml:"event_publisher" mapstructure:"event_publisher"`
	HandlerRegistration string `toml:"handler_registration" mapstructure:"handler_registration"`
	ScanCache           string `toml:"scan_cache" mapstructure:"scan_cache"`
	ScanCacheFile       string `toml:"scan_cache_file" mapstructure:"scan_cache_file"`

	EnableCircuitBreaker    bool          `toml:"enable_circuit_breaker" mapstructure:"enable_circuit_breaker"`
	BreakerFailureThreshold int           `toml:"breaker_failure_threshold" mapstructure:"breaker_failure_threshold"`
	BreakerOpenTimeout      time.Duration `toml:"breaker_open_timeout" mapstructure:"breaker_open_timeout"`
}

func DefaultOptions() Options {
	return Options{
		EnableLogging:       true,
		RetryCount:          3,
		PolicyRetryCount:    3,
		EventPublisher:      "parallel",
		HandlerRegistration: "both",
		ScanCache:           "none",

		BreakerFailureThreshold: 5,
		BreakerOpenTimeout:      30 * time.Second,
	}
}

// LoadOptions reads options from a TOML file. Keys missing from the file keep their
// defaults.
func LoadOptions(path string) (Options, error) {
	o := DefaultOptions()
	if _, err := toml.DecodeFile(path, &o); err != nil {
		return Options{}, fmt.Errorf("bus: loading options from %s: %w", path, err)
	}
	return o, o.Validate()
}

// DecodeOptions reads options from a map, such as a section of a larger config.
// Values are converted leniently, so "true" and "3" are accepted.
func DecodeOptions(m map[string]interface{}) (Options, error) {
	o := DefaultOptions()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &o,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return Options{}, err
	}
	if err := dec.Decode(m); err != nil {
		return Options{}, fmt.Errorf("bus: decoding options: %w", err)
	}
	return o, o.Validate()
}

func (o Options) Validate() error {
	if o.RetryCount < 0 || o.PolicyRetryCount < 0 {
		return fmt.Errorf("bus: retry counts can't be negative")
	}
	if o.EnableCircuitBreaker && (o.BreakerFailureThreshold < 1 || o.BreakerOpenTimeout <= 0) {
		return fmt.Errorf("bus: circuit breaker needs a positive failure threshold and open timeout")
	}
	if _, err := ParsePublisher(o.EventPublisher); err != nil {
		return err
	}
	if _, err := ParseRegistrationMode(o.HandlerRegistration); err != nil {
		return err
	}
	_, err := ParseScanCacheMode(o.ScanCache)
	return err
}

// WithOptions configures the bus from o: logging, the default publisher, the
// registration mode, the scan cache, and the retry, policy and circuit breaker
// middlewares, which are installed before any module or Use registration. One
// breaker guards both commands and queries, inside the retry policy.
func WithOptions(o Options) Config {
	return func(b *Bus) error {
		if err := o.Validate(); err != nil {
			return err
		}
		b.options = o
		if !o.EnableLogging {
			b.logger = discard
		}
		b.publisher, _ = ParsePublisher(o.EventPublisher)
		b.mode, _ = ParseRegistrationMode(o.HandlerRegistration)
		mode, _ := ParseScanCacheMode(o.ScanCache)
		b.closeScanCache()
		b.scanCache = NewScanCache(mode, o.ScanCacheFile)
		b.ownsScan = true

		b.builtin = nil
		if o.EnableRetry {
			b.builtin = append(b.builtin, Retry(o.RetryCount))
		}
		if o.EnablePolicy {
			exec := resilience.Exponential(o.PolicyRetryCount, 50*time.Millisecond)
			b.builtin = append(b.builtin,
				Policy(message.Command, exec),
				Policy(message.Query, exec),
				EventPolicy(exec),
			)
		}
		if o.EnableCircuitBreaker {
			cb := resilience.NewCircuitBreaker(
				resilience.WithName("bus"),
				resilience.WithFailureThreshold(o.BreakerFailureThreshold),
				resilience.WithOpenTimeout(o.BreakerOpenTimeout),
				resilience.OnStateChange(func(from, to resilience.State) {
					b.logger.Warn(context.Background(), "Circuit breaker state changed", log.F{
						"from": from.String(),
						"to":   to.String(),
					})
				}),
			)
			b.builtin = append(b.builtin, Policy(message.Command, cb), Policy(message.Query, cb))
		}
		return nil
	}
}
