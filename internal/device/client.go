package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/plgd-dev/go-coap/v3/message/codes"
	"go.uber.org/zap"

	"github.com/sensoroic/sensoroic/internal/logging"
	"github.com/sensoroic/sensoroic/internal/oic"
	"github.com/sensoroic/sensoroic/internal/protocol"
)

// FirstNotificationTimeout bounds the wait for an observation to start.
const FirstNotificationTimeout = 10 * time.Second

var (
	// ErrNoResponse means an observed resource never sent a value.
	ErrNoResponse = errors.New("device failed to respond")

	ErrUnsupportedFormat = errors.New("unsupported content format")
	ErrNotSwitch         = errors.New("resource has no switch state")
)

// StatusError is a reply with a non-2.xx code.
type StatusError struct {
	Code codes.Code
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed: %s", e.Code)
}

// Requester carries single resource requests to a host.
type Requester interface {
	Get(ctx context.Context, host, href string) (*protocol.Response, error)
	Put(ctx context.Context, host, href string, payload []byte) (*protocol.Response, error)
	Observe(ctx context.Context, host, href string, onNotify func(*protocol.Response)) error
}

// Client works with the resources of discovered hosts.
type Client struct {
	req          Requester
	clock        clock.Clock
	firstTimeout time.Duration
	log          *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) { c.clock = clk }
}

// WithFirstNotificationTimeout overrides FirstNotificationTimeout.
func WithFirstNotificationTimeout(d time.Duration) Option {
	return func(c *Client) { c.firstTimeout = d }
}

// New creates a client over req.
func New(req Requester, opts ...Option) *Client {
	c := &Client{
		req:          req,
		clock:        clock.New(),
		firstTimeout: FirstNotificationTimeout,
		log:          logging.Named("device"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get reads the representation of href on host.
func (c *Client) Get(ctx context.Context, host, href string) (oic.Representation, error) {
	resp, err := c.req.Get(ctx, host, href)
	if err != nil {
		return nil, err
	}
	return decode(resp)
}

// Observe hands every value of href to onValue until ctx is done. It
// returns ErrNoResponse when the first value does not arrive in time, and
// stops at the first failed notification.
func (c *Client) Observe(ctx context.Context, host, href string, onValue func(oic.Representation)) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	timer := c.clock.Timer(c.firstTimeout)
	defer timer.Stop()

	events := make(chan *protocol.Response, 16)
	err := c.req.Observe(ctx, host, href, func(r *protocol.Response) {
		select {
		case events <- r:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return err
	}

	c.log.Debug("Observing", zap.String("host", host), zap.String("href", href))
	timeout := timer.C
	received := 0
	for {
		select {
		case <-ctx.Done():
			if received == 0 {
				return ctx.Err()
			}
			return nil
		case <-timeout:
			return fmt.Errorf("%w within %s", ErrNoResponse, c.firstTimeout)
		case r := <-events:
			if timeout != nil {
				timer.Stop()
				timeout = nil
			}
			received++
			rep, err := decode(r)
			if err != nil {
				return err
			}
			onValue(rep)
		}
	}
}

// Switch turns a binary switch on or off.
func (c *Client) Switch(ctx context.Context, host, href string, on bool) error {
	payload, err := oic.EncodeSwitch(on)
	if err != nil {
		return err
	}
	resp, err := c.req.Put(ctx, host, href, payload)
	if err != nil {
		return err
	}
	if !protocol.IsSuccess(resp.Code) {
		return &StatusError{Code: resp.Code}
	}
	c.log.Debug("Switched", zap.String("host", host), zap.String("href", href), zap.Bool("on", on))
	return nil
}

// Toggle reads a binary switch and writes the opposite state, which it
// returns.
func (c *Client) Toggle(ctx context.Context, host, href string) (bool, error) {
	rep, err := c.Get(ctx, host, href)
	if err != nil {
		return false, err
	}
	on, ok := rep.Switch()
	if !ok {
		return false, ErrNotSwitch
	}
	if err := c.Switch(ctx, host, href, !on); err != nil {
		return false, err
	}
	return !on, nil
}

func decode(r *protocol.Response) (oic.Representation, error) {
	if !protocol.IsSuccess(r.Code) {
		return nil, &StatusError{Code: r.Code}
	}
	if !r.CBOR() {
		return nil, ErrUnsupportedFormat
	}
	return oic.DecodeRepresentation(r.Payload)
}
