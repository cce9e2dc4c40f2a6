package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"runclub/core/events"
	"runclub/core/state"
	"runclub/core/types"
	"runclub/native/common"
	"runclub/native/runclub"
	"runclub/native/token"
	"runclub/observability"
	rcotel "runclub/observability/otel"
	"runclub/storage"
)

// Op names a runtime call for pause checks and metrics.
type Op struct {
	Module string
	Name   string
}

// Call exposes the engines bound to one journal. Everything written through
// it lands together or not at all.
type Call struct {
	Clubs   *runclub.Engine
	Tokens  *token.Engine
	State   *state.Manager
	Signers SignerSet
}

// Runtime serializes calls against the store, commits each call's writes as a
// single batch and delivers its events once the batch is durable.
type Runtime struct {
	mu      sync.RWMutex
	db      storage.Database
	symbol  string
	nowFn   func() uint64
	sink    events.Emitter
	pauses  common.PauseView
	logger  *slog.Logger
	metrics *observability.RunClubMetrics
}

// Option customises a Runtime.
type Option func(*Runtime)

// WithClock overrides the unix-seconds clock handed to the engines.
func WithClock(now func() uint64) Option {
	return func(r *Runtime) {
		if now != nil {
			r.nowFn = now
		}
	}
}

// WithEmitter sets the sink receiving committed events.
func WithEmitter(emitter events.Emitter) Option {
	return func(r *Runtime) {
		if emitter != nil {
			r.sink = emitter
		}
	}
}

// WithPauses installs the module pause view.
func WithPauses(view common.PauseView) Option {
	return func(r *Runtime) { r.pauses = view }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runtime) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithMetrics(metrics *observability.RunClubMetrics) Option {
	return func(r *Runtime) { r.metrics = metrics }
}

// NewRuntime binds a runtime to db using symbol as the stable asset.
func NewRuntime(db storage.Database, symbol string, opts ...Option) (*Runtime, error) {
	if db == nil {
		return nil, errors.New("core: database must not be nil")
	}
	r := &Runtime{
		db:     db,
		symbol: token.NormalizeSymbol(symbol),
		nowFn:  func() uint64 { return uint64(time.Now().Unix()) },
		sink:   events.NoopEmitter{},
		logger: slog.Default(),
	}
	if r.symbol == "" {
		return nil, errors.New("core: token symbol must not be empty")
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Symbol returns the stable asset symbol.
func (r *Runtime) Symbol() string { return r.symbol }

// Now returns the runtime clock.
func (r *Runtime) Now() uint64 { return r.nowFn() }

func (r *Runtime) bind(store state.Store, signers SignerSet, emitter events.Emitter) *Call {
	if signers == nil {
		signers = SignerSet{}
	}
	mgr := state.NewManager(store)

	clubs := runclub.NewEngine()
	clubs.SetState(mgr)
	clubs.SetAuthorizer(signers)
	clubs.SetEmitter(emitter)
	clubs.SetNowFunc(r.nowFn)

	tokens := token.NewEngine(r.symbol)
	tokens.SetState(mgr)
	tokens.SetAuthorizer(signers)
	tokens.SetEmitter(emitter)

	return &Call{Clubs: clubs, Tokens: tokens, State: mgr, Signers: signers}
}

// Execute runs fn against a fresh journal. When fn fails nothing is written
// and no events are delivered.
func (r *Runtime) Execute(ctx context.Context, op Op, signers SignerSet, fn func(*Call) error) (err error) {
	started := time.Now()
	ctx, span := rcotel.Tracer().Start(ctx, "runtime."+op.Name, trace.WithAttributes(
		attribute.String("runclub.module", op.Module),
		attribute.Int("runclub.signers", len(signers)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		r.metrics.ObserveOperation(op.Name, err, time.Since(started))
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := common.Guard(r.pauses, op.Module); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	journal := state.NewJournal(r.db)
	buffer := &events.Buffer{}
	if err := fn(r.bind(journal, signers, buffer)); err != nil {
		journal.Discard()
		return err
	}
	if err := ctx.Err(); err != nil {
		journal.Discard()
		return err
	}
	if err := journal.Commit(); err != nil {
		journal.Discard()
		return fmt.Errorf("commit %s: %w", op.Name, err)
	}
	r.deliver(buffer.Events())
	return nil
}

type readOnlyStore struct {
	*state.Journal
}

var errReadOnly = errors.New("core: write attempted in read-only view")

func (readOnlyStore) Update([]byte, []byte) error { return errReadOnly }
func (readOnlyStore) Delete([]byte) error         { return errReadOnly }

// View runs fn against committed state. Writes are rejected.
func (r *Runtime) View(ctx context.Context, fn func(*Call) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return fn(r.bind(readOnlyStore{state.NewJournal(r.db)}, nil, events.NoopEmitter{}))
}

// Publish delivers events produced outside a state transition, such as period
// end notices.
func (r *Runtime) Publish(evts ...*types.Event) {
	wrapped := make([]events.Event, 0, len(evts))
	for _, evt := range evts {
		if evt != nil {
			wrapped = append(wrapped, runclub.WrapEvent(evt))
		}
	}
	r.deliver(wrapped)
}

func (r *Runtime) deliver(evts []events.Event) {
	for _, evt := range evts {
		r.metrics.RecordEvent(evt.EventType())
		r.sink.Emit(evt)
	}
	if len(evts) > 0 {
		r.logger.Debug("events delivered", slog.Int("count", len(evts)))
	}
}
