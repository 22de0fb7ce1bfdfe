// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package outbox delivers mail in the background. Messages are queued
// without blocking the caller, sent by a fixed set of workers with
// exponential backoff, and reported on a failure channel once retries are
// exhausted.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sethvargo/go-retry"
)

var (
	ErrQueueFull = errors.New("outbox queue is full")
	ErrClosed    = errors.New("outbox is closed")
)

// Message is a single mail to deliver.
type Message struct {
	ID       string
	To       string
	Subject  string
	Text     string
	HTML     string
	QueuedAt time.Time
}

// Sender delivers one message. Errors are retried unless wrapped with
// Permanent.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Failure describes a message that was given up on.
type Failure struct {
	Message  Message
	Err      error
	Attempts int
	FailedAt time.Time
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying, e.g. an invalid recipient.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// Config controls queue size, concurrency and retries.
type Config struct {
	Workers        int
	BufferSize     int
	MaxAttempts    int
	InitialBackoff time.Duration
	SendTimeout    time.Duration
}

func (c *Config) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 64
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 30 * time.Second
	}
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithFailureHandler registers fn to be called for every failure. It runs on
// the worker goroutine.
func WithFailureHandler(fn func(Failure)) Option {
	return func(d *Dispatcher) { d.onFailure = fn }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithClock sets the clock used for timestamps.
func WithClock(clock clockwork.Clock) Option {
	return func(d *Dispatcher) { d.clock = clock }
}

// Dispatcher queues messages and delivers them with a worker pool.
type Dispatcher struct {
	cfg       Config
	sender    Sender
	onFailure func(Failure)
	logger    *slog.Logger
	clock     clockwork.Clock

	queue    chan Message
	failures chan Failure

	mu        sync.RWMutex
	closed    bool
	wg        sync.WaitGroup
	closeOnce sync.Once

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// New starts a Dispatcher with cfg.Workers workers.
func New(cfg Config, sender Sender, opts ...Option) *Dispatcher {
	cfg.applyDefaults()

	d := &Dispatcher{
		cfg:      cfg,
		sender:   sender,
		logger:   slog.Default(),
		clock:    clockwork.NewRealClock(),
		queue:    make(chan Message, cfg.BufferSize),
		failures: make(chan Failure, cfg.BufferSize),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.work()
	}
	return d
}

// SendMail queues a message and returns immediately.
func (d *Dispatcher) SendMail(_ context.Context, to, subject, textBody, htmlBody string) error {
	_, err := d.Enqueue(Message{
		To:      to,
		Subject: subject,
		Text:    textBody,
		HTML:    htmlBody,
	})
	return err
}

// Enqueue adds msg to the queue and returns its ID. A full queue rejects
// the message with ErrQueueFull and reports it as a failure.
func (d *Dispatcher) Enqueue(msg Message) (string, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.QueuedAt = d.clock.Now()

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return "", ErrClosed
	}

	select {
	case d.queue <- msg:
		return msg.ID, nil
	default:
		d.fail(Failure{Message: msg, Err: ErrQueueFull, FailedAt: d.clock.Now()})
		return "", ErrQueueFull
	}
}

// Failures returns the channel failures are published on. Failures are
// dropped when nobody keeps up with reading; Dropped counts them. The
// channel is closed by Close.
func (d *Dispatcher) Failures() <-chan Failure {
	return d.failures
}

// Sent returns the number of delivered messages.
func (d *Dispatcher) Sent() uint64 {
	return d.sent.Load()
}

// Dropped returns the number of failures that could not be published on
// the failure channel.
func (d *Dispatcher) Dropped() uint64 {
	return d.dropped.Load()
}

// Close stops accepting messages, waits for the queue to drain and closes
// the failure channel.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()

		d.wg.Wait()
		close(d.failures)
	})
}

func (d *Dispatcher) work() {
	defer d.wg.Done()

	for msg := range d.queue {
		d.deliver(msg)
	}
}

func (d *Dispatcher) deliver(msg Message) {
	attempts := 0
	backoff := retry.WithMaxRetries(uint64(d.cfg.MaxAttempts-1), retry.NewExponential(d.cfg.InitialBackoff))

	err := retry.Do(context.Background(), backoff, func(ctx context.Context) error {
		attempts++

		ctx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
		defer cancel()

		err := d.sender.Send(ctx, msg)
		if err == nil {
			return nil
		}

		var perm permanentError
		if errors.As(err, &perm) {
			return perm.err
		}

		d.logger.Debug("mail_delivery_retry", "id", msg.ID, "to", msg.To, "attempt", attempts, "error", err)
		return retry.RetryableError(err)
	})

	if err == nil {
		d.sent.Add(1)
		d.logger.Debug("mail_delivered", "id", msg.ID, "to", msg.To, "attempts", attempts)
		return
	}

	d.fail(Failure{
		Message:  msg,
		Err:      fmt.Errorf("deliver %s: %w", msg.ID, err),
		Attempts: attempts,
		FailedAt: d.clock.Now(),
	})
}

func (d *Dispatcher) fail(f Failure) {
	if d.onFailure != nil {
		d.onFailure(f)
	}

	select {
	case d.failures <- f:
	default:
		d.dropped.Add(1)
	}
}
