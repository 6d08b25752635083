package distro

import (
	"encoding/binary"
)

// SerializableTensor is the wire representation of a Tensor: Full tensors
// carry their raw contiguous bytes; Bool tensors are packed 8 values to a
// byte (LSB first), cutting the bytes a sign-quantized gradient needs on
// the wire to an eighth.
type SerializableTensor struct {
	Dims         []int64
	Kind         Kind
	RequiresGrad bool
	OneBit       bool
	Bytes        []byte
}

// NewSerializableTensor converts t into its wire representation, packing
// Bool tensors to bits.
func NewSerializableTensor(t Tensor) (SerializableTensor, error) {
	if err := t.Validate(); err != nil {
		return SerializableTensor{}, err
	}
	if t.Kind != KindBool {
		return SerializableTensor{
			Dims:         t.Dims,
			Kind:         t.Kind,
			RequiresGrad: t.RequiresGrad,
			Bytes:        append([]byte(nil), t.Data...),
		}, nil
	}
	return SerializableTensor{
		Dims:         t.Dims,
		Kind:         t.Kind,
		RequiresGrad: t.RequiresGrad,
		OneBit:       true,
		Bytes:        packBits(t.Data),
	}, nil
}

// ToTensor is the inverse of NewSerializableTensor, unpacking Bool bits
// back into one byte per element.
func (s SerializableTensor) ToTensor() (Tensor, error) {
	if !s.OneBit {
		return Tensor{
			Dims:         s.Dims,
			Kind:         s.Kind,
			RequiresGrad: s.RequiresGrad,
			Data:         append([]byte(nil), s.Bytes...),
		}, nil
	}
	n := int64(1)
	for _, d := range s.Dims {
		n *= d
	}
	return Tensor{
		Dims:         s.Dims,
		Kind:         s.Kind,
		RequiresGrad: s.RequiresGrad,
		Data:         unpackBits(s.Bytes, n),
	}, nil
}

// packBits packs an unpacked 0/1-per-byte buffer into LSB-first bits.
func packBits(unpacked []byte) []byte {
	out := make([]byte, (len(unpacked)+7)/8)
	for i, v := range unpacked {
		if v != 0 {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

// unpackBits is the inverse of packBits, truncated to n elements.
func unpackBits(packed []byte, n int64) []byte {
	out := make([]byte, n)
	for i := int64(0); i < n; i++ {
		byt := packed[i/8]
		if byt&(1<<uint(i%8)) != 0 {
			out[i] = 1
		}
	}
	return out
}

// Marshal flattens a SerializableTensor as:
// num_dims(4) || dims(8 each) || kind(1) || requires_grad(1) || one_bit(1)
// || len(bytes)(4) || bytes.
func (s SerializableTensor) Marshal() []byte {
	out := make([]byte, 0, 4+8*len(s.Dims)+3+4+len(s.Bytes))
	out = binary.BigEndian.AppendUint32(out, uint32(len(s.Dims)))
	for _, d := range s.Dims {
		out = binary.BigEndian.AppendUint64(out, uint64(d))
	}
	out = append(out, byte(s.Kind))
	out = append(out, boolByte(s.RequiresGrad), boolByte(s.OneBit))
	out = binary.BigEndian.AppendUint32(out, uint32(len(s.Bytes)))
	out = append(out, s.Bytes...)
	return out
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// UnmarshalSerializableTensor is the inverse of Marshal. It returns the
// tensor plus the number of bytes consumed from b, so callers can decode a
// stream of concatenated tensors (as the blob format does).
func UnmarshalSerializableTensor(b []byte) (SerializableTensor, int, error) {
	if len(b) < 4 {
		return SerializableTensor{}, 0, ErrShortTensor
	}
	numDims := int(binary.BigEndian.Uint32(b[0:4]))
	off := 4
	if len(b) < off+8*numDims {
		return SerializableTensor{}, 0, ErrShortTensor
	}
	dims := make([]int64, numDims)
	for i := range dims {
		dims[i] = int64(binary.BigEndian.Uint64(b[off:]))
		off += 8
	}
	if len(b) < off+3+4 {
		return SerializableTensor{}, 0, ErrShortTensor
	}
	kind := Kind(b[off])
	requiresGrad := b[off+1] != 0
	oneBit := b[off+2] != 0
	off += 3
	n := int(binary.BigEndian.Uint32(b[off:]))
	off += 4
	if len(b) < off+n {
		return SerializableTensor{}, 0, ErrShortTensor
	}
	bytes := append([]byte(nil), b[off:off+n]...)
	off += n
	return SerializableTensor{
		Dims:         dims,
		Kind:         kind,
		RequiresGrad: requiresGrad,
		OneBit:       oneBit,
		Bytes:        bytes,
	}, off, nil
}
