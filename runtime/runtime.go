package runtime

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/wippyai/libraw-wasm/decoder"
	"github.com/wippyai/libraw-wasm/engine"
	"github.com/wippyai/libraw-wasm/errors"
	"github.com/wippyai/libraw-wasm/params"
)

// Runtime holds a compiled LibRaw module and creates decoders from it.
// Runtime is safe for concurrent use; the decoders it returns are not.
type Runtime struct {
	engine *engine.WazeroEngine
	log    *zap.Logger
	cfg    Config
}

// New compiles wasm and links its imports. A nil cfg uses DefaultConfig.
func New(ctx context.Context, wasm []byte, cfg *Config) (*Runtime, error) {
	c := DefaultConfig()
	if cfg != nil {
		c = *cfg
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	log := c.Logger
	if log == nil {
		log = engine.Logger()
	}

	eng, err := engine.NewWazeroEngine(ctx, wasm, c.engineConfig())
	if err != nil {
		return nil, err
	}
	log.Debug("runtime ready",
		zap.Int("module_bytes", len(wasm)),
		zap.Uint32("memory_limit_pages", c.MemoryLimitPages),
		zap.Bool("cache", c.CacheDir != ""))

	return &Runtime{
		engine: eng,
		log:    log,
		cfg:    c,
	}, nil
}

// LoadFile reads a LibRaw WASM build from path and compiles it.
func LoadFile(ctx context.Context, path string, cfg *Config) (*Runtime, error) {
	wasm, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Load("read engine module", err)
	}
	return New(ctx, wasm, cfg)
}

// Close releases all runtime resources.
// All decoders must be closed before calling this.
func (r *Runtime) Close(ctx context.Context) error {
	return r.engine.Close(ctx)
}

// Engine returns the underlying compiled engine.
func (r *Runtime) Engine() *engine.WazeroEngine {
	return r.engine
}

// NewDecoder instantiates a fresh engine instance and wraps it in a decoder.
// The caller closes the decoder.
func (r *Runtime) NewDecoder(ctx context.Context) (*decoder.Decoder, error) {
	inst, err := r.engine.NewInstance(ctx)
	if err != nil {
		return nil, err
	}
	return decoder.New(inst,
		decoder.WithLogger(r.log),
		decoder.WithMaxInputBytes(r.cfg.MaxInputBytes),
	), nil
}

// Result is the outcome of a one-shot decode.
type Result struct {
	Metadata *decoder.Metadata
	Image    *decoder.Image
}

// Decode runs source through a new decoder and returns its metadata and an
// owned copy of the image. The decoder is closed before Decode returns.
func (r *Runtime) Decode(ctx context.Context, source any, settings params.Request) (_ *Result, err error) {
	d, err := r.NewDecoder(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := d.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := d.Open(ctx, source, settings); err != nil {
		return nil, err
	}
	meta, err := d.Metadata(ctx)
	if err != nil {
		return nil, err
	}
	img, err := d.ImageData(ctx)
	if err != nil {
		return nil, err
	}
	return &Result{Metadata: meta, Image: img}, nil
}

// DecodeFile decodes the raw file at path.
func (r *Runtime) DecodeFile(ctx context.Context, path string, settings params.Request) (*Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseMarshal, errors.KindNotFound, err, "open raw file")
	}
	defer f.Close()
	return r.Decode(ctx, f, settings)
}
