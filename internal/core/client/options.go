package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/hublink/hublink/internal/core/observability/log"
	"github.com/hublink/hublink/internal/core/transport"
)

// Recognized option names for SetOption. Anything else is forwarded to the
// transport verbatim.
const (
	// OptionTimeout is the communication timeout for enqueued event
	// messages. Accepts a time.Duration or an int of milliseconds.
	OptionTimeout = "timeout"
	// OptionKeepAlive is the transport keep-alive interval. Accepts a
	// time.Duration or an int of seconds.
	OptionKeepAlive = "keepalive"
	// OptionLogTrace toggles verbose logging. Accepts a bool.
	OptionLogTrace = "logtrace"
	// OptionSASTokenLifetime is the security token lifetime. Accepts a
	// time.Duration or an int of seconds.
	OptionSASTokenLifetime = "sas_token_lifetime"
)

// SetOption sets a runtime option by name. Unrecognized names are handed to
// the transport; a name neither the client nor the transport recognizes
// fails with ErrNotSupported rather than being silently ignored.
func (c *Client) SetOption(name string, value any) error {
	if c.destroyed {
		return ErrDestroyed
	}
	if name == "" {
		return fmt.Errorf("%w: empty option name", ErrInvalidArgument)
	}

	switch name {
	case OptionTimeout:
		d, ok := durationValue(value, time.Millisecond)
		if !ok {
			return fmt.Errorf("%w: option %q wants a duration", ErrInvalidArgument, name)
		}
		c.cfg.CommTimeout = d
		return nil
	case OptionLogTrace:
		verbose, ok := value.(bool)
		if !ok {
			return fmt.Errorf("%w: option %q wants a bool", ErrInvalidArgument, name)
		}
		if verbose {
			c.logger.SetLevel(log.LevelDebug)
		} else {
			c.logger.SetLevel(c.cfg.LogLevel)
		}
		return nil
	case OptionKeepAlive:
		d, ok := durationValue(value, time.Second)
		if !ok {
			return fmt.Errorf("%w: option %q wants a duration", ErrInvalidArgument, name)
		}
		c.cfg.KeepAlive = d
		c.forwardOption(name, d)
		return nil
	case OptionSASTokenLifetime:
		d, ok := durationValue(value, time.Second)
		if !ok {
			return fmt.Errorf("%w: option %q wants a duration", ErrInvalidArgument, name)
		}
		c.cfg.SASTokenLifetime = d
		c.forwardOption(name, d)
		return nil
	}

	// Low-level transport tuning knob: forward verbatim.
	if err := c.tr.SetOption(name, value); err != nil {
		if errors.Is(err, transport.ErrOptionNotSupported) {
			return fmt.Errorf("%w: option %q", ErrNotSupported, name)
		}
		return fmt.Errorf("%w: option %q: %v", ErrInvalidArgument, name, err)
	}
	return nil
}

// forwardOption pushes a client-recognized option down to the transport too;
// transports that do not care are free to reject it.
func (c *Client) forwardOption(name string, value any) {
	if err := c.tr.SetOption(name, value); err != nil && !errors.Is(err, transport.ErrOptionNotSupported) {
		c.logger.Warn("transport rejected option", log.String("option", name), log.Error(err))
	}
}

// durationValue coerces an option value into a duration, treating bare ints
// as counts of the given unit.
func durationValue(value any, unit time.Duration) (time.Duration, bool) {
	switch v := value.(type) {
	case time.Duration:
		return v, v >= 0
	case int:
		return time.Duration(v) * unit, v >= 0
	case int64:
		return time.Duration(v) * unit, v >= 0
	case uint:
		return time.Duration(v) * unit, true
	default:
		return 0, false
	}
}
