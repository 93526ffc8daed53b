package decoder

import (
	"context"

	"go.uber.org/zap"

	"github.com/wippyai/libraw-wasm/buffer"
	"github.com/wippyai/libraw-wasm/engine"
	"github.com/wippyai/libraw-wasm/errors"
	"github.com/wippyai/libraw-wasm/params"
)

// State is the lifecycle position of a Decoder.
type State uint8

const (
	StateCreated State = iota
	StateOpened
	StateUnpacked
	StateProcessed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateOpened:
		return "opened"
	case StateUnpacked:
		return "unpacked"
	case StateProcessed:
		return "processed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithLogger sets the logger used for pipeline events.
func WithLogger(l *zap.Logger) Option {
	return func(d *Decoder) {
		if l != nil {
			d.log = l
		}
	}
}

// WithMaxInputBytes rejects inputs larger than n bytes. Zero means no limit.
func WithMaxInputBytes(n int64) Option {
	return func(d *Decoder) {
		d.maxInput = n
	}
}

// Decoder drives one engine session through open, unpack and process and
// exposes the result. A Decoder handles a single input and is not safe for
// concurrent use.
type Decoder struct {
	eng      engine.Engine
	log      *zap.Logger
	params   params.Params
	maxInput int64
	state    State
}

// New wraps eng. The decoder owns eng and closes it on Close.
func New(eng engine.Engine, opts ...Option) *Decoder {
	d := &Decoder{
		eng:    eng,
		log:    engine.Logger(),
		params: params.Defaults(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// State returns the current lifecycle state.
func (d *Decoder) State() State {
	return d.state
}

// Params returns the engine options last pushed by Open.
func (d *Decoder) Params() params.Params {
	return d.params
}

// Open marshals source, applies settings and runs the full decode pipeline.
//
// Source may be nil, []byte, string, io.Reader or any slice or array of
// numbers. A nil or empty source reaches the engine, which rejects it with an
// open-stage EngineError. On a stage failure the decoder stays in the last
// state it reached and Open must not be retried on a later stage.
func (d *Decoder) Open(ctx context.Context, source any, settings params.Request) error {
	switch d.state {
	case StateClosed:
		return errors.NotInitialized("decoder", d.state.String())
	case StateCreated:
	default:
		return errors.InvalidState("decoder already used for an input; create a new one")
	}

	data, err := buffer.ToOwned(source, buffer.WithLimit(d.maxInput))
	if err != nil {
		return err
	}

	next := d.params
	res, err := params.Apply(&next, settings)
	if err != nil {
		return err
	}
	if len(res.Ignored) > 0 {
		d.log.Debug("ignored options with wrong length", zap.Strings("keys", res.Ignored))
	}
	if len(res.Unknown) > 0 {
		d.log.Debug("unknown options", zap.Strings("keys", res.Unknown))
	}
	if err := d.eng.SetParams(ctx, &next, res.Applied); err != nil {
		return err
	}
	d.params = next

	d.log.Debug("open", zap.Int("bytes", len(data)), zap.Int("options", len(res.Applied)))
	if err := d.stage(ctx, errors.StageOpen, func() (engine.Status, error) {
		return d.eng.OpenBuffer(ctx, data)
	}); err != nil {
		return err
	}
	d.state = StateOpened

	if err := d.stage(ctx, errors.StageUnpack, func() (engine.Status, error) {
		return d.eng.Unpack(ctx)
	}); err != nil {
		return err
	}
	d.state = StateUnpacked

	if err := d.stage(ctx, errors.StageProcess, func() (engine.Status, error) {
		return d.eng.Process(ctx)
	}); err != nil {
		return err
	}
	d.state = StateProcessed
	return nil
}

func (d *Decoder) stage(_ context.Context, stage errors.Stage, run func() (engine.Status, error)) error {
	status, err := run()
	if err != nil {
		d.log.Debug("stage failed", zap.String("stage", string(stage)), zap.Error(err))
		return err
	}
	if !status.OK() {
		fields := []zap.Field{
			zap.String("stage", string(stage)),
			zap.Int32("status", int32(status)),
			zap.Stringer("text", status),
		}
		if status.Fatal() {
			d.log.Warn("fatal engine status, processor must be discarded", fields...)
		} else {
			d.log.Debug("stage rejected", fields...)
		}
		return &errors.EngineError{Stage: stage, Code: int32(status), Text: status.String()}
	}
	d.log.Debug("stage done", zap.String("stage", string(stage)))
	return nil
}

func (d *Decoder) ready(what string) error {
	if d.state != StateProcessed {
		return errors.NotInitialized(what, d.state.String())
	}
	return nil
}

// Close releases the engine session and every string option it holds.
// Close is idempotent.
func (d *Decoder) Close(ctx context.Context) error {
	if d.state == StateClosed {
		return nil
	}
	d.state = StateClosed
	return d.eng.Close(ctx)
}
