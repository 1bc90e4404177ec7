// Package fanout provides the per-type dispatch channels between the sender
// and the downstream channel senders.
package fanout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tinywideclouds/go-unifiedpush-service/internal/telemetry"
	"github.com/tinywideclouds/go-unifiedpush-service/pkg/push"
)

var (
	ErrQueueFull   = errors.New("fan-out queue is full")
	ErrBusClosed   = errors.New("fan-out bus is closed")
	ErrUnknownType = errors.New("no fan-out channel for variant type")
)

const defaultCapacity = 256

// Handler consumes the fan-out events of one variant type.
type Handler interface {
	Handle(ctx context.Context, msg *push.MessageWithVariants) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, msg *push.MessageWithVariants) error

func (f HandlerFunc) Handle(ctx context.Context, msg *push.MessageWithVariants) error {
	return f(ctx, msg)
}

// Config sizes the per-type queues.
type Config struct {
	QueueSize int
}

// Bus owns one buffered channel and one consumer goroutine per variant type.
// The sender is the only producer. Delivery is at most once per event: queued
// events are lost if the process dies before a consumer handles them.
type Bus struct {
	queues   map[push.VariantType]chan *push.MessageWithVariants
	handlers map[push.VariantType]Handler
	logger   *slog.Logger

	mu      sync.RWMutex
	started bool
	closed  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewBus creates a queue for every known variant type. Types with no handler
// still get a queue; their events are consumed and dropped with a warning.
func NewBus(cfg Config, handlers map[push.VariantType]Handler, logger *slog.Logger) *Bus {
	size := cfg.QueueSize
	if size <= 0 {
		size = defaultCapacity
	}

	queues := make(map[push.VariantType]chan *push.MessageWithVariants)
	for _, t := range push.AllVariantTypes() {
		queues[t] = make(chan *push.MessageWithVariants, size)
	}
	registered := make(map[push.VariantType]Handler, len(handlers))
	for t, h := range handlers {
		registered[t] = h
	}

	return &Bus{
		queues:   queues,
		handlers: registered,
		logger:   logger.With("component", "FanoutBus"),
	}
}

// Emit queues the event on its type's channel without blocking.
func (b *Bus) Emit(_ context.Context, msg *push.MessageWithVariants) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrBusClosed
	}
	queue, ok := b.queues[msg.Type]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownType, msg.Type)
	}

	select {
	case queue <- msg:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrQueueFull, msg.Type)
	}
}

// Start launches one consumer per type. Handlers receive a context that is
// cancelled only when Stop gives up waiting.
func (b *Bus) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBusClosed
	}
	if b.started {
		return nil
	}

	consumeCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	b.cancel = cancel
	b.started = true

	for variantType, queue := range b.queues {
		b.wg.Add(1)
		go b.consume(consumeCtx, variantType, queue)
	}
	b.logger.Info("Fan-out consumers started", "types", len(b.queues), "handlers", len(b.handlers))
	return nil
}

// Stop closes the queues and waits for consumers to drain them. If ctx expires
// first the consumers are cancelled and the remaining events are lost.
func (b *Bus) Stop(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, queue := range b.queues {
		close(queue)
	}
	started := b.started
	b.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.cancel()
		b.logger.Info("Fan-out consumers drained")
		return nil
	case <-ctx.Done():
		b.cancel()
		b.logger.Warn("Fan-out drain interrupted; pending events dropped", "err", ctx.Err())
		return ctx.Err()
	}
}

func (b *Bus) consume(ctx context.Context, variantType push.VariantType, queue <-chan *push.MessageWithVariants) {
	defer b.wg.Done()
	handler := b.handlers[variantType]
	consumerLogger := b.logger.With("type", variantType)

	for msg := range queue {
		if ctx.Err() != nil {
			// Stop timed out; drain without handling so the goroutine exits.
			continue
		}
		if handler == nil {
			consumerLogger.Warn("No sender registered for variant type; dropping event", "push_message_id", infoID(msg))
			telemetry.FanoutEvent(string(variantType), telemetry.ResultDropped)
			continue
		}
		if err := b.handle(ctx, handler, msg); err != nil {
			consumerLogger.Error("Fan-out handler failed", "push_message_id", infoID(msg), "err", err)
		}
	}
}

func (b *Bus) handle(ctx context.Context, handler Handler, msg *push.MessageWithVariants) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler.Handle(ctx, msg)
}

func infoID(msg *push.MessageWithVariants) string {
	if msg.Info == nil {
		return ""
	}
	return msg.Info.ID
}
