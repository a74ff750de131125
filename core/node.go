package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"lendcore/core/events"
	"lendcore/core/state"
	"lendcore/crypto"
	nativecommon "lendcore/native/common"
	"lendcore/native/lending"
	"lendcore/native/oracle"
	"lendcore/native/token"
	"lendcore/observability"
	telemetry "lendcore/observability/otel"
)

const (
	oracleModule = "oracle"
	tokenModule  = "token"
)

// Receipt reports the outcome of a committed batch.
type Receipt struct {
	Slot    uint64            `json:"slot"`
	Nonce   uint64            `json:"nonce"`
	Results []json.RawMessage `json:"results"`
	Events  []EventRecord     `json:"events"`
}

// EventRecord is the wire form of an emitted event.
type EventRecord struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Node serializes signed batches against the state manager. Each batch runs
// inside one state transaction at one slot and commits only if every
// instruction succeeds.
type Node struct {
	mu                sync.Mutex
	state             *state.Manager
	clock             SlotClock
	protocolAuthority crypto.Address
	pauses            nativecommon.PauseView
	emitter           events.Emitter
	logger            *slog.Logger
	tracer            trace.Tracer
	batchCounter      metric.Int64Counter
}

// Option customises a Node.
type Option func(*Node)

func WithClock(clock SlotClock) Option { return func(n *Node) { n.clock = clock } }

func WithPauses(p nativecommon.PauseView) Option { return func(n *Node) { n.pauses = p } }

// WithEmitter sets the sink receiving events of committed batches.
func WithEmitter(e events.Emitter) Option { return func(n *Node) { n.emitter = e } }

func WithLogger(l *slog.Logger) Option { return func(n *Node) { n.logger = l } }

// NewNode constructs a node over mgr. Without a clock the node stays at slot zero.
func NewNode(mgr *state.Manager, protocolAuthority crypto.Address, opts ...Option) (*Node, error) {
	if mgr == nil {
		return nil, errors.New("core: state manager required")
	}
	n := &Node{
		state:             mgr,
		clock:             NewManualClock(0),
		protocolAuthority: protocolAuthority,
		emitter:           events.NoopEmitter{},
		logger:            slog.Default(),
		tracer:            telemetry.Tracer(),
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.emitter == nil {
		n.emitter = events.NoopEmitter{}
	}
	counter, err := otel.Meter(telemetry.TracerName).Int64Counter("lend.batches",
		metric.WithDescription("Signed batches processed by the node"))
	if err != nil {
		return nil, fmt.Errorf("core: create batch counter: %w", err)
	}
	n.batchCounter = counter
	return n, nil
}

// Slot returns the current slot of the node's clock.
func (n *Node) Slot() uint64 { return n.clock.Slot() }

// ProtocolAuthority returns the configured protocol authority.
func (n *Node) ProtocolAuthority() crypto.Address { return n.protocolAuthority }

// Execute verifies env and applies its instructions atomically.
func (n *Node) Execute(ctx context.Context, env *Envelope) (*Receipt, error) {
	if env == nil || len(env.Instructions) == 0 {
		return nil, ErrEmptyBatch
	}
	if len(env.Instructions) > MaxInstructions {
		return nil, fmt.Errorf("%w: at most %d instructions", ErrInvalidParams, MaxInstructions)
	}
	if err := env.Verify(); err != nil {
		return nil, err
	}

	ctx, span := n.tracer.Start(ctx, "core.Execute", trace.WithAttributes(
		attribute.String("signer", env.Signer.String()),
		attribute.Int64("nonce", int64(env.Nonce)),
		attribute.Int("instructions", len(env.Instructions)),
	))
	defer span.End()

	n.mu.Lock()
	defer n.mu.Unlock()

	started := time.Now()
	slot := n.clock.Slot()
	receipt, err := n.apply(env, slot)
	observability.Executor().ObserveBatch(slot, err, time.Since(started))
	outcome := "committed"
	if err != nil {
		outcome = "rejected"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		n.logger.Warn("batch rejected",
			slog.String("signer", env.Signer.String()),
			slog.Uint64("nonce", env.Nonce),
			slog.Uint64("slot", slot),
			slog.Any("error", err))
	} else {
		n.logger.Info("batch committed",
			slog.String("signer", env.Signer.String()),
			slog.Uint64("nonce", env.Nonce),
			slog.Uint64("slot", slot),
			slog.Int("instructions", len(env.Instructions)),
			slog.Int("events", len(receipt.Events)))
	}
	n.batchCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	return receipt, err
}

func (n *Node) apply(env *Envelope, slot uint64) (*Receipt, error) {
	tx := n.state.Begin()
	defer tx.Discard()

	stored, err := tx.Nonce(env.Signer)
	if err != nil {
		return nil, err
	}
	if env.Nonce != stored+1 {
		return nil, fmt.Errorf("%w: have %d, want %d", ErrBadNonce, env.Nonce, stored+1)
	}

	buf := &events.Buffer{}
	ledger := token.NewLedger(tx)
	feeds := oracle.NewRegistry(tx, buf)
	engine := lending.NewEngine(n.protocolAuthority)
	engine.SetState(tx)
	engine.SetTokens(ledger)
	engine.SetOracle(feeds)
	engine.SetEmitter(buf)
	engine.SetPauses(n.pauses)
	engine.SetSlot(slot)

	exec := &execContext{
		signer:  env.Signer,
		slot:    slot,
		engine:  engine,
		ledger:  ledger,
		feeds:   feeds,
		emitter: buf,
	}
	results := make([]json.RawMessage, 0, len(env.Instructions))
	for i, ins := range env.Instructions {
		result, err := n.dispatch(exec, ins)
		observability.Executor().ObserveInstruction(ins.Op, err)
		if err != nil {
			return nil, &BatchError{Index: i, Op: ins.Op, Err: err}
		}
		encoded, err := json.Marshal(result)
		if err != nil {
			return nil, &BatchError{Index: i, Op: ins.Op, Err: err}
		}
		results = append(results, encoded)
	}

	if err := tx.SetNonce(env.Signer, env.Nonce); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("core: commit batch: %w", err)
	}

	emitted := buf.Events()
	records := make([]EventRecord, 0, len(emitted))
	for _, e := range emitted {
		records = append(records, EventRecord{Type: e.EventType(), Attributes: e.Attributes()})
	}
	buf.Flush(n.emitter)
	return &Receipt{Slot: slot, Nonce: env.Nonce, Results: results, Events: records}, nil
}

func (n *Node) dispatch(ctx *execContext, ins Instruction) (any, error) {
	h, ok := handlers[ins.Op]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownInstruction, ins.Op)
	}
	switch ins.Op {
	case OpInitFeed, OpUpdateFeedPrice:
		if err := nativecommon.Guard(n.pauses, oracleModule); err != nil {
			return nil, err
		}
	case OpTransfer:
		if err := nativecommon.Guard(n.pauses, tokenModule); err != nil {
			return nil, err
		}
	}
	return h(ctx, ins.Params)
}

// view runs fn against a read-only engine bound to a throwaway transaction.
func (n *Node) view(fn func(engine *lending.Engine, tx *state.Tx) error) error {
	return n.state.View(func(tx *state.Tx) error {
		engine := lending.NewEngine(n.protocolAuthority)
		engine.SetState(tx)
		engine.SetTokens(token.NewLedger(tx))
		engine.SetOracle(oracle.NewRegistry(tx, nil))
		engine.SetSlot(n.clock.Slot())
		return fn(engine, tx)
	})
}

func (n *Node) Market(addr crypto.Address) (*lending.LendingMarket, error) {
	var out *lending.LendingMarket
	err := n.view(func(engine *lending.Engine, _ *state.Tx) error {
		var err error
		out, err = engine.Market(addr)
		return err
	})
	return out, err
}

func (n *Node) Reserve(addr crypto.Address) (*lending.Reserve, error) {
	var out *lending.Reserve
	err := n.view(func(engine *lending.Engine, _ *state.Tx) error {
		var err error
		out, err = engine.Reserve(addr)
		return err
	})
	return out, err
}

// Reserves lists every reserve in registration order.
func (n *Node) Reserves() ([]*lending.Reserve, error) {
	var out []*lending.Reserve
	err := n.view(func(engine *lending.Engine, _ *state.Tx) error {
		var err error
		out, err = engine.Reserves()
		return err
	})
	return out, err
}

func (n *Node) Obligation(addr crypto.Address) (*lending.Obligation, error) {
	var out *lending.Obligation
	err := n.view(func(engine *lending.Engine, _ *state.Tx) error {
		var err error
		out, err = engine.Obligation(addr)
		return err
	})
	return out, err
}

func (n *Node) Feed(addr crypto.Address) (*oracle.Feed, error) {
	var out *oracle.Feed
	err := n.state.View(func(tx *state.Tx) error {
		var err error
		out, err = oracle.NewRegistry(tx, nil).Feed(addr)
		return err
	})
	return out, err
}

// Balance returns owner's balance of mint.
func (n *Node) Balance(mint, owner crypto.Address) (uint64, error) {
	var out uint64
	err := n.state.View(func(tx *state.Tx) error {
		var err error
		out, err = token.NewLedger(tx).BalanceOf(mint, owner)
		return err
	})
	return out, err
}

// Nonce returns the last nonce committed for addr.
func (n *Node) Nonce(addr crypto.Address) (uint64, error) {
	var out uint64
	err := n.state.View(func(tx *state.Tx) error {
		var err error
		out, err = tx.Nonce(addr)
		return err
	})
	return out, err
}
