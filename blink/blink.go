package blink

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"gregoryjjb/blinker/gpio"
	"gregoryjjb/blinker/pubsub"
)

var blog zerolog.Logger

func init() {
	blog = log.With().Str("component", "blink").Logger()
}

const (
	DefaultMinPeriod = 100
	DefaultMaxPeriod = 10000
	DefaultPeriod    = 1000
)

// MaxPeriodLimit is the longest period whose duration fits in a time.Duration.
const MaxPeriodLimit int64 = math.MaxInt64 / int64(time.Millisecond)

var ErrPeriodOutOfRange = errors.New("period out of range")

type EventType string

const (
	EventStarted EventType = "started"
	EventStopped EventType = "stopped"
	EventLevel   EventType = "level"
	EventPeriod  EventType = "period"
	EventFailed  EventType = "failed"
)

type Event struct {
	Type    EventType  `json:"type"`
	Running bool       `json:"running"`
	Period  int        `json:"period"`
	Level   gpio.Value `json:"level"`
	Error   string     `json:"error,omitempty"`
	Time    time.Time  `json:"time"`
}

// State is a point-in-time view of a Controller.
type State struct {
	Running   bool       `json:"running"`
	Period    int        `json:"period"`
	Level     gpio.Value `json:"level"`
	MinPeriod int        `json:"min_period"`
	MaxPeriod int        `json:"max_period"`
}

type Option func(*Controller)

// WithBounds sets the inclusive range accepted by SetPeriod.
func WithBounds(min, max int) Option {
	return func(c *Controller) {
		c.minPeriod = min
		c.maxPeriod = max
	}
}

// WithPeriod sets the starting period. New fails if it is outside the bounds.
func WithPeriod(period int) Option {
	return func(c *Controller) {
		c.initialPeriod = period
	}
}

// WithErrorHandler is called once, from the loop goroutine, when a write
// fails while blinking.
func WithErrorHandler(fn func(error)) Option {
	return func(c *Controller) {
		c.onError = fn
	}
}

// Controller drives a sink with a square wave while running.
type Controller struct {
	sink    gpio.Sink
	events  *pubsub.Pubsub[Event]
	onError func(error)

	minPeriod     int
	maxPeriod     int
	initialPeriod int

	// mu guards the fields below and serializes every sink write
	mu      sync.Mutex
	running bool
	period  int
	level   gpio.Value // last value written
	next    gpio.Value // value the loop writes next
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(sink gpio.Sink, opts ...Option) (*Controller, error) {
	c := &Controller{
		sink:          sink,
		events:        pubsub.New[Event](),
		minPeriod:     DefaultMinPeriod,
		maxPeriod:     DefaultMaxPeriod,
		initialPeriod: DefaultPeriod,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.minPeriod <= 0 || c.maxPeriod < c.minPeriod || int64(c.maxPeriod) > MaxPeriodLimit {
		return nil, fmt.Errorf("invalid period bounds [%d, %d]", c.minPeriod, c.maxPeriod)
	}
	if err := c.checkPeriod(c.initialPeriod); err != nil {
		return nil, err
	}
	c.period = c.initialPeriod

	return c, nil
}

func (c *Controller) checkPeriod(p int) error {
	if p < c.minPeriod || p > c.maxPeriod {
		return fmt.Errorf("%w: %d is not within [%d, %d]", ErrPeriodOutOfRange, p, c.minPeriod, c.maxPeriod)
	}
	return nil
}

// SetPeriod changes the full on+off cycle length in milliseconds. A running
// loop picks it up at its next half-cycle; the sleep already in progress
// keeps its old length.
func (c *Controller) SetPeriod(p int) error {
	if err := c.checkPeriod(p); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.period == p {
		return nil
	}
	c.period = p
	blog.Debug().Int("period", p).Msg("Period changed")
	c.publishLocked(EventPeriod, nil)
	return nil
}

// Start drives the line HIGH and begins toggling. The HIGH write has
// happened by the time Start returns.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}

	c.running = true
	if err := c.writeLocked(gpio.High); err != nil {
		c.running = false
		c.publishLocked(EventFailed, err)
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.next = gpio.Low
	c.cancel = cancel
	c.done = make(chan struct{})

	blog.Info().Int("period", c.period).Msg("Blinking started")
	c.publishLocked(EventStarted, nil)

	// The HIGH phase is already showing, so its length is fixed here.
	go c.run(ctx, c.done, c.halfPeriodLocked())
	return nil
}

// Stop ends the loop and drives the line LOW. The LOW write is the last
// write the sink sees, and the loop goroutine has exited when Stop returns.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}

	done, err := c.stopLocked()
	c.mu.Unlock()

	<-done
	return err
}

// stopLocked halts the loop and writes LOW. The caller waits on the
// returned channel after releasing mu.
func (c *Controller) stopLocked() (<-chan struct{}, error) {
	done := c.haltLocked()
	err := c.writeLocked(gpio.Low)
	if err != nil {
		c.publishLocked(EventFailed, err)
	}

	blog.Info().Msg("Blinking stopped")
	c.publishLocked(EventStopped, nil)
	return done, err
}

// Toggle stops a running controller and starts a stopped one.
func (c *Controller) Toggle() error {
	if c.Running() {
		return c.Stop()
	}
	return c.Start()
}

// Reset drives the line LOW to reach a known state. A running loop is
// stopped first, as with Stop.
func (c *Controller) Reset() error {
	c.mu.Lock()
	if c.running {
		done, err := c.stopLocked()
		c.mu.Unlock()

		<-done
		return err
	}
	defer c.mu.Unlock()

	err := c.writeLocked(gpio.Low)
	if err != nil {
		c.publishLocked(EventFailed, err)
	}
	return err
}

func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return State{
		Running:   c.running,
		Period:    c.period,
		Level:     c.level,
		MinPeriod: c.minPeriod,
		MaxPeriod: c.maxPeriod,
	}
}

// Subscribe returns a stream of controller events and a function that
// ends the subscription.
func (c *Controller) Subscribe() (func(), <-chan Event) {
	id, ch := c.events.Subscribe()
	return func() {
		c.events.Unsubscribe(id)
	}, ch
}

// Close stops blinking and ends every subscription. The sink is left open.
func (c *Controller) Close() error {
	err := c.Stop()
	c.events.Close()
	return err
}

// run sleeps half, writes the pending level, and repeats. Each following
// sleep length is read together with the write, so a SetPeriod only affects
// sleeps that have not started yet.
func (c *Controller) run(ctx context.Context, done chan struct{}, half time.Duration) {
	defer close(done)

	for {
		timer := time.NewTimer(half)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		c.mu.Lock()
		// Stop holds mu while it writes LOW, so checking here keeps a late
		// write from landing after it.
		if ctx.Err() != nil {
			c.mu.Unlock()
			return
		}

		if err := c.writeLocked(c.next); err != nil {
			c.haltLocked()
			blog.Err(err).Msg("Blinking aborted")
			c.publishLocked(EventFailed, err)
			c.mu.Unlock()

			if c.onError != nil {
				c.onError(err)
			}
			return
		}
		c.next = c.next.Toggle()
		half = c.halfPeriodLocked()
		c.mu.Unlock()
	}
}

func (c *Controller) halfPeriodLocked() time.Duration {
	return time.Duration(c.period) * time.Millisecond / 2
}

// haltLocked marks the controller stopped and cancels the loop, returning
// a channel closed once the loop has exited.
func (c *Controller) haltLocked() <-chan struct{} {
	c.running = false
	c.cancel()
	return c.done
}

func (c *Controller) writeLocked(v gpio.Value) error {
	if err := c.sink.Write(v); err != nil {
		var werr *gpio.WriteError
		if !errors.As(err, &werr) {
			err = &gpio.WriteError{Value: v, Err: err}
		}
		return err
	}
	c.level = v
	c.publishLocked(EventLevel, nil)
	return nil
}

func (c *Controller) publishLocked(t EventType, err error) {
	e := Event{
		Type:    t,
		Running: c.running,
		Period:  c.period,
		Level:   c.level,
		Time:    time.Now(),
	}
	if err != nil {
		e.Error = err.Error()
	}
	c.events.Publish(e)
}
