package channels

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/RealZimboGuy/courseflow/internal/domain"
)

// Request is everything an adapter may need to perform one side effect.
type Request struct {
	Record  *domain.ExecutionRecord
	Action  *domain.FlowAction
	Subject *domain.SubjectSnapshot
	Config  domain.ChannelConfig
}

func (r Request) IdempotencyKey() string {
	return r.Record.IdempotencyKey
}

// Adapter performs the side effect for one channel family. It returns a
// reference to what it produced, or an error classified with DeliveryError,
// ErrPrecondition or a context error.
type Adapter interface {
	Deliver(ctx context.Context, req Request) (string, error)
}

// AdapterFunc lets a plain function act as an Adapter.
type AdapterFunc func(ctx context.Context, req Request) (string, error)

func (f AdapterFunc) Deliver(ctx context.Context, req Request) (string, error) { return f(ctx, req) }

type registration struct {
	adapter Adapter
	timeout time.Duration
}

// Dispatcher routes a record to the adapter for its action's channel and turns
// the result into an Outcome.
type Dispatcher struct {
	adapters map[domain.ChannelType]registration
	marker   Marker
	logger   *slog.Logger
}

func NewDispatcher(marker Marker, logger *slog.Logger) *Dispatcher {
	if marker == nil {
		marker = NewMemoryMarker()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{adapters: make(map[domain.ChannelType]registration), marker: marker, logger: logger}
}

// Register binds adapter to channel with its own call timeout. A zero timeout
// means the caller's context alone bounds the call.
func (d *Dispatcher) Register(channel domain.ChannelType, adapter Adapter, timeout time.Duration) {
	d.adapters[channel] = registration{adapter: adapter, timeout: timeout}
}

func (d *Dispatcher) Dispatch(ctx context.Context, record *domain.ExecutionRecord, action *domain.FlowAction, subject *domain.SubjectSnapshot) Outcome {
	log := d.logger.With("record_id", record.ID, "action_id", action.ID, "channel", action.ChannelType)

	cfg, err := domain.ParseChannelConfig(action)
	if err != nil {
		return Permanent("configuration: " + err.Error())
	}
	reg, ok := d.adapters[action.ChannelType]
	if !ok {
		return Permanent(fmt.Sprintf("no adapter for channel %q", action.ChannelType))
	}

	key := record.IdempotencyKey
	ref, seen, err := d.marker.Seen(ctx, key)
	if err != nil {
		return Transient("idempotency marker: " + err.Error())
	}
	if seen {
		log.InfoContext(ctx, "Effect already performed, skipping delivery", "idempotency_key", key)
		out := Done(ref)
		out.Duplicate = true
		return out
	}

	callCtx := ctx
	if reg.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, reg.timeout)
		defer cancel()
	}
	ref, err = reg.adapter.Deliver(callCtx, Request{Record: record, Action: action, Subject: subject, Config: cfg})
	if err != nil {
		out := OutcomeFromError(err)
		log.WarnContext(ctx, "Delivery failed", "outcome", out.Kind.String(), "error", err)
		return out
	}

	if err := d.marker.Mark(ctx, key, ref); err != nil {
		// the provider also received the key, so a retry is still deduplicated there
		log.ErrorContext(ctx, "Failed to write idempotency marker", "idempotency_key", key, "error", err)
	}
	return Done(ref)
}
