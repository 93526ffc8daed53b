package rawtest

import (
	"context"
	"encoding/binary"
	stderrors "errors"

	"github.com/wippyai/libraw-wasm/engine"
	"github.com/wippyai/libraw-wasm/params"
)

// ErrInjected is returned by Fake calls listed in Fail.
var ErrInjected = stderrors.New("injected engine failure")

// Fake is an in-process engine.Engine driven by a Scenario.
type Fake struct {
	Scenario Scenario
	// Fail makes the named method return ErrInjected.
	Fail map[string]bool

	Params    *params.Params
	Opened    [][]byte
	Calls     map[string]int
	Live      map[uint64]bool
	Cleared   int
	Doubles   int
	Closed    bool
	nextImage uint64

	// Pushed lists the option keys of the last SetParams call.
	Pushed []string

	opened    bool
	unpacked  bool
	processed bool
}

// NewFake returns a fake running s.
func NewFake(s Scenario) *Fake {
	return &Fake{
		Scenario: s,
		Fail:     make(map[string]bool),
		Calls:    make(map[string]int),
		Live:     make(map[uint64]bool),
	}
}

func (f *Fake) enter(name string) error {
	f.Calls[name]++
	if f.Fail[name] {
		return ErrInjected
	}
	return nil
}

func (f *Fake) SetParams(_ context.Context, p *params.Params, keys []string) error {
	if err := f.enter("SetParams"); err != nil {
		return err
	}
	cp := *p
	f.Params = &cp
	f.Pushed = append([]string(nil), keys...)
	return nil
}

func (f *Fake) OpenBuffer(_ context.Context, data []byte) (engine.Status, error) {
	if err := f.enter("OpenBuffer"); err != nil {
		return 0, err
	}
	f.Opened = append(f.Opened, append([]byte(nil), data...))
	if len(data) == 0 {
		return engine.StatusIOError, nil
	}
	if f.Scenario.OpenStatus != engine.StatusSuccess {
		return f.Scenario.OpenStatus, nil
	}
	f.opened = true
	return engine.StatusSuccess, nil
}

func (f *Fake) Unpack(_ context.Context) (engine.Status, error) {
	if err := f.enter("Unpack"); err != nil {
		return 0, err
	}
	if !f.opened {
		return engine.StatusOutOfOrderCall, nil
	}
	if f.Scenario.UnpackStatus != engine.StatusSuccess {
		return f.Scenario.UnpackStatus, nil
	}
	f.unpacked = true
	return engine.StatusSuccess, nil
}

func (f *Fake) Process(_ context.Context) (engine.Status, error) {
	if err := f.enter("Process"); err != nil {
		return 0, err
	}
	if !f.unpacked {
		return engine.StatusOutOfOrderCall, nil
	}
	if f.Scenario.ProcessStatus != engine.StatusSuccess {
		return f.Scenario.ProcessStatus, nil
	}
	f.processed = true
	return engine.StatusSuccess, nil
}

func (f *Fake) State(_ context.Context) (*engine.State, error) {
	if err := f.enter("State"); err != nil {
		return nil, err
	}
	st := f.Scenario.State
	return &st, nil
}

func (f *Fake) MakeMemImage(_ context.Context) (*engine.ProcessedImage, engine.Status, error) {
	if err := f.enter("MakeMemImage"); err != nil {
		return nil, 0, err
	}
	s := f.Scenario
	if !f.processed {
		return nil, engine.StatusOutOfOrderCall, nil
	}
	if s.NoImage {
		return nil, s.ImageErrc, nil
	}

	size := uint32(s.Width) * uint32(s.Height) * uint32(s.Colors) * uint32((s.Bits+7)/8)
	if s.DataSize != 0 {
		size = s.DataSize
	}
	f.nextImage++
	f.Live[f.nextImage] = true
	return &engine.ProcessedImage{
		Order:    binary.LittleEndian,
		Data:     Pattern(s.Bits, int(size)),
		Handle:   f.nextImage,
		Type:     engine.ImageBitmap,
		DataSize: size,
		Height:   s.Height,
		Width:    s.Width,
		Colors:   s.Colors,
		Bits:     s.Bits,
	}, engine.StatusSuccess, nil
}

func (f *Fake) ClearMem(_ context.Context, img *engine.ProcessedImage) error {
	if err := f.enter("ClearMem"); err != nil {
		return err
	}
	f.Cleared++
	if img == nil || !f.Live[img.Handle] {
		f.Doubles++
		return nil
	}
	delete(f.Live, img.Handle)
	// poison the view so use after release shows up in tests
	for i := range img.Data {
		img.Data[i] = 0xEE
	}
	img.Data = nil
	img.Handle = 0
	return nil
}

func (f *Fake) Close(_ context.Context) error {
	f.Calls["Close"]++
	f.Closed = true
	return nil
}

var _ engine.Engine = (*Fake)(nil)
