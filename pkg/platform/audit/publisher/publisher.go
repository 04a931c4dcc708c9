// Package publisher fans audit events out to an audit.Store, either inline or
// through a bounded in-process buffer drained by a background goroutine.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	audit "signupgate/pkg/platform/audit"
	"signupgate/pkg/requestcontext"
)

var (
	ErrBufferFull = errors.New("audit buffer full")
	ErrClosed     = errors.New("audit publisher closed")
)

// Publisher emits audit events. In sync mode Emit blocks on the store; in async
// mode Emit never blocks and drops the event when the buffer is full.
type Publisher struct {
	store   audit.Store
	logger  *slog.Logger
	sampler *Sampler

	mu     sync.RWMutex
	closed bool
	events chan audit.Event
	wg     sync.WaitGroup
}

type Option func(*Publisher)

// WithAsyncBuffer enables async mode with a buffer of the given size.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.events = make(chan audit.Event, size)
		}
	}
}

// WithSampler drops a share of operations events before they are stored.
func WithSampler(s *Sampler) Option {
	return func(p *Publisher) {
		p.sampler = s
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	if p.events != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit records an event. Missing ID, timestamp and category are filled in.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = requestcontext.Now(ctx)
	}
	if event.Category == "" {
		event.Category = audit.AuditEvent(event.Action).Category()
	}
	if event.RequestID == "" {
		event.RequestID = requestcontext.RequestID(ctx)
	}
	if p.sampler != nil && !p.sampler.Keep(event) {
		return nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	if p.events == nil {
		return p.store.Append(ctx, event)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case p.events <- event:
		return nil
	default:
		p.logger.WarnContext(ctx, "audit buffer full, dropping event", "action", event.Action)
		return ErrBufferFull
	}
}

// Close stops accepting events and waits until buffered events are written.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	if p.events != nil {
		close(p.events)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for event := range p.events {
		if err := p.store.Append(context.Background(), event); err != nil {
			p.logger.Error("failed to persist audit event", "action", event.Action, "error", err)
		}
	}
}
