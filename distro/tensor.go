// Package distro implements the DisTrO gradient wire representation: the
// sparse index/value tensors exchanged between peers, their binary
// encoding, and the 1-bit sign quantization path used for Bool tensors.
// The numerical compression itself (the DCT transform, the optimizer math
// that produces sparse_idx/sparse_val) is the external trainer's concern;
// this package owns what travels over the wire and what the commitment
// hashes.
package distro

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Kind discriminates a Tensor's element type, the small set a compressed
// gradient actually ships.
type Kind uint8

const (
	KindFloat32 Kind = iota
	KindFloat64
	KindInt64
	KindInt32
	KindBool
)

func (k Kind) String() string {
	switch k {
	case KindFloat32:
		return "Float32"
	case KindFloat64:
		return "Float64"
	case KindInt64:
		return "Int64"
	case KindInt32:
		return "Int32"
	case KindBool:
		return "Bool"
	default:
		return "Unknown"
	}
}

// elemSize returns the per-element byte width of a Tensor's unpacked,
// contiguous byte representation (one byte per element for Bool -- the
// 1-bit packing only happens at the SerializableTensor boundary).
func (k Kind) elemSize() (int, error) {
	switch k {
	case KindFloat32, KindInt32:
		return 4, nil
	case KindFloat64, KindInt64:
		return 8, nil
	case KindBool:
		return 1, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnknownKind, k)
	}
}

// ErrUnknownKind is returned when a Kind byte does not match a known
// variant.
var ErrUnknownKind = errors.New("distro: unknown tensor kind")

// Tensor is a lightweight, in-memory stand-in for the external trainer's
// real tensor type: dims, kind, and a contiguous little-endian byte buffer.
// It exists so the gradient wire representation (SerializableTensor) has a
// round-trip counterpart to test against; the actual numerics live outside
// this module.
type Tensor struct {
	Dims         []int64
	Kind         Kind
	RequiresGrad bool
	Data         []byte
}

// NumElements returns the product of Dims.
func (t Tensor) NumElements() int64 {
	n := int64(1)
	for _, d := range t.Dims {
		n *= d
	}
	return n
}

// ErrDimsMismatch is returned when a Tensor's Data length does not match
// what its Dims and Kind imply.
var ErrDimsMismatch = errors.New("distro: tensor data length does not match dims/kind")

// Validate checks that Data's length matches NumElements * elemSize(Kind).
func (t Tensor) Validate() error {
	sz, err := t.Kind.elemSize()
	if err != nil {
		return err
	}
	want := t.NumElements() * int64(sz)
	if int64(len(t.Data)) != want {
		return fmt.Errorf("%w: want %d got %d", ErrDimsMismatch, want, len(t.Data))
	}
	return nil
}

// Float32Tensor builds a Tensor of kind Float32 from values, for tests and
// for the client runtime's local gradient staging.
func Float32Tensor(dims []int64, values []float32) Tensor {
	data := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}
	return Tensor{Dims: dims, Kind: KindFloat32, Data: data}
}

// Float32Values decodes a Float32 Tensor back into a float32 slice.
func (t Tensor) Float32Values() ([]float32, error) {
	if t.Kind != KindFloat32 {
		return nil, fmt.Errorf("%w: tensor is %s, not Float32", ErrDimsMismatch, t.Kind)
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	out := make([]float32, len(t.Data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(t.Data[i*4:]))
	}
	return out, nil
}

// BoolTensor builds a Tensor of kind Bool from a slice of unpacked
// booleans, one byte per element (0 or 1), matching the unpacked
// in-memory layout a real Bool tensor would have before SerializableTensor
// packs it to bits for the wire.
func BoolTensor(dims []int64, values []bool) Tensor {
	data := make([]byte, len(values))
	for i, v := range values {
		if v {
			data[i] = 1
		}
	}
	return Tensor{Dims: dims, Kind: KindBool, Data: data}
}

// BoolValues decodes a Bool Tensor back into a []bool.
func (t Tensor) BoolValues() ([]bool, error) {
	if t.Kind != KindBool {
		return nil, fmt.Errorf("%w: tensor is %s, not Bool", ErrDimsMismatch, t.Kind)
	}
	out := make([]bool, len(t.Data))
	for i, b := range t.Data {
		out[i] = b != 0
	}
	return out, nil
}
