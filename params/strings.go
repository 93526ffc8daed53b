package params

import (
	"context"
	"strings"

	"github.com/wippyai/libraw-wasm/errors"
)

// Slot identifies one of the engine's owned C-string parameters.
type Slot int

const (
	SlotOutputProfile Slot = iota
	SlotCameraProfile
	SlotBadPixels
	SlotDarkFrame
	numSlots
)

var slotKeys = [numSlots]string{"output_profile", "camera_profile", "bad_pixels", "dark_frame"}

// Slots lists all string slots.
func Slots() []Slot {
	return []Slot{SlotOutputProfile, SlotCameraProfile, SlotBadPixels, SlotDarkFrame}
}

// Key is the option key of the slot.
func (s Slot) Key() string {
	return slotKeys[s]
}

// SlotFor returns the string slot backing key.
func SlotFor(key string) (Slot, bool) {
	for i, k := range slotKeys {
		if k == key {
			return Slot(i), true
		}
	}
	return 0, false
}

// Get returns the slot's value from p.
func (s Slot) Get(p *Params) string {
	switch s {
	case SlotOutputProfile:
		return p.OutputProfile
	case SlotCameraProfile:
		return p.CameraProfile
	case SlotBadPixels:
		return p.BadPixels
	default:
		return p.DarkFrame
	}
}

// Allocator hands out engine-owned memory addressed by P.
type Allocator[P comparable] interface {
	Alloc(ctx context.Context, size uint32) (P, error)
	Free(ctx context.Context, ptr P) error
	Write(ptr P, data []byte) error
}

// StringStore owns the NUL-terminated buffers placed into the engine's
// string parameters. The zero value of P is the null pointer.
//
// Each slot holds at most one live allocation. Set releases the previous one
// before allocating; ReleaseAll frees everything and may be called repeatedly.
type StringStore[P comparable] struct {
	alloc  Allocator[P]
	ptrs   [numSlots]P
	values [numSlots]string
}

// NewStringStore creates an empty store backed by alloc.
func NewStringStore[P comparable](alloc Allocator[P]) *StringStore[P] {
	return &StringStore[P]{alloc: alloc}
}

// Set replaces the slot's allocation with a copy of value. An empty value
// leaves the slot null. The returned pointer is what the engine should see.
func (s *StringStore[P]) Set(ctx context.Context, slot Slot, value string) (P, error) {
	var null P
	if err := s.release(ctx, slot); err != nil {
		return null, err
	}
	if value == "" {
		return null, nil
	}
	if strings.IndexByte(value, 0) >= 0 {
		return null, errors.New(errors.PhaseConfigure, errors.KindInvalidInput).
			Path(slot.Key()).
			Detail("value contains a NUL byte").
			Build()
	}

	buf := make([]byte, len(value)+1)
	copy(buf, value)

	ptr, err := s.alloc.Alloc(ctx, uint32(len(buf)))
	if err != nil {
		return null, errors.AllocationFailed(errors.PhaseConfigure, uint32(len(buf)), err)
	}
	if ptr == null {
		return null, errors.AllocationFailed(errors.PhaseConfigure, uint32(len(buf)), nil)
	}
	if err := s.alloc.Write(ptr, buf); err != nil {
		_ = s.alloc.Free(ctx, ptr)
		return null, err
	}

	s.ptrs[slot] = ptr
	s.values[slot] = value
	return ptr, nil
}

// Ptr returns the slot's current allocation or the null pointer.
func (s *StringStore[P]) Ptr(slot Slot) P {
	return s.ptrs[slot]
}

// Value returns the text held by the slot.
func (s *StringStore[P]) Value(slot Slot) string {
	return s.values[slot]
}

// Live counts slots holding an allocation.
func (s *StringStore[P]) Live() int {
	var null P
	n := 0
	for _, p := range s.ptrs {
		if p != null {
			n++
		}
	}
	return n
}

// ReleaseAll frees every live allocation and resets all slots to null.
// It returns the first free error but always visits every slot.
func (s *StringStore[P]) ReleaseAll(ctx context.Context) error {
	var first error
	for _, slot := range Slots() {
		if err := s.release(ctx, slot); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (s *StringStore[P]) release(ctx context.Context, slot Slot) error {
	var null P
	ptr := s.ptrs[slot]
	if ptr == null {
		return nil
	}
	s.ptrs[slot] = null
	s.values[slot] = ""
	return s.alloc.Free(ctx, ptr)
}
