package distro

import (
	"encoding/binary"
	"errors"

	"github.com/psyche-network/psyche/types"
)

// ErrShortTensor is returned when a marshaled SerializableTensor is
// truncated relative to its declared field lengths.
var ErrShortTensor = errors.New("distro: truncated serializable tensor")

// Result is the client-side, pre-serialization DisTrO compressed gradient
// for one batch: a sparse index/value tensor pair plus the shape metadata
// needed to reconstruct a dense update (GLOSSARY: "DisTrO result").
type Result struct {
	SparseIndex Tensor
	SparseVal   Tensor
	XShape      []int64
	TotalK      int64
}

// SerializedResult is the wire form of a single Result: its two tensors
// converted to SerializableTensor, and XShape narrowed to uint16 (shapes
// here are small spatial dims, not token counts).
type SerializedResult struct {
	SparseIndex SerializableTensor
	SparseVal   SerializableTensor
	XShape      []uint16
	TotalK      uint32
}

// ErrShapeOverflow is returned when an XShape or TotalK value does not fit
// the wire's narrower integer width.
var ErrShapeOverflow = errors.New("distro: shape dimension exceeds uint16")

// NewSerializedResult converts r into its wire form.
func NewSerializedResult(r Result) (SerializedResult, error) {
	idx, err := NewSerializableTensor(r.SparseIndex)
	if err != nil {
		return SerializedResult{}, err
	}
	val, err := NewSerializableTensor(r.SparseVal)
	if err != nil {
		return SerializedResult{}, err
	}
	xshape := make([]uint16, len(r.XShape))
	for i, d := range r.XShape {
		if d < 0 || d > 0xFFFF {
			return SerializedResult{}, ErrShapeOverflow
		}
		xshape[i] = uint16(d)
	}
	if r.TotalK < 0 || r.TotalK > 0xFFFFFFFF {
		return SerializedResult{}, ErrShapeOverflow
	}
	return SerializedResult{
		SparseIndex: idx,
		SparseVal:   val,
		XShape:      xshape,
		TotalK:      uint32(r.TotalK),
	}, nil
}

// ToResult is the inverse of NewSerializedResult.
func (s SerializedResult) ToResult() (Result, error) {
	idx, err := s.SparseIndex.ToTensor()
	if err != nil {
		return Result{}, err
	}
	val, err := s.SparseVal.ToTensor()
	if err != nil {
		return Result{}, err
	}
	xshape := make([]int64, len(s.XShape))
	for i, d := range s.XShape {
		xshape[i] = int64(d)
	}
	return Result{
		SparseIndex: idx,
		SparseVal:   val,
		XShape:      xshape,
		TotalK:      int64(s.TotalK),
	}, nil
}

// Marshal flattens a SerializedResult as sparse_idx || sparse_val ||
// num_xshape_dims(2) || xshape(2 each) || totalk(4).
func (s SerializedResult) Marshal() []byte {
	idx := s.SparseIndex.Marshal()
	val := s.SparseVal.Marshal()
	out := make([]byte, 0, len(idx)+len(val)+2+2*len(s.XShape)+4)
	out = append(out, idx...)
	out = append(out, val...)
	out = binary.BigEndian.AppendUint16(out, uint16(len(s.XShape)))
	for _, d := range s.XShape {
		out = binary.BigEndian.AppendUint16(out, d)
	}
	out = binary.BigEndian.AppendUint32(out, s.TotalK)
	return out
}

// UnmarshalSerializedResult is the inverse of Marshal, returning the
// number of bytes consumed so a stream of results can be decoded back to
// back (the stream format EncodeBlob and DecodeBlob use).
func UnmarshalSerializedResult(b []byte) (SerializedResult, int, error) {
	idx, n1, err := UnmarshalSerializableTensor(b)
	if err != nil {
		return SerializedResult{}, 0, err
	}
	rest := b[n1:]
	val, n2, err := UnmarshalSerializableTensor(rest)
	if err != nil {
		return SerializedResult{}, 0, err
	}
	rest = rest[n2:]
	if len(rest) < 2 {
		return SerializedResult{}, 0, ErrShortTensor
	}
	numDims := int(binary.BigEndian.Uint16(rest[0:2]))
	off := 2
	if len(rest) < off+2*numDims+4 {
		return SerializedResult{}, 0, ErrShortTensor
	}
	xshape := make([]uint16, numDims)
	for i := range xshape {
		xshape[i] = binary.BigEndian.Uint16(rest[off:])
		off += 2
	}
	totalK := binary.BigEndian.Uint32(rest[off:])
	off += 4
	return SerializedResult{SparseIndex: idx, SparseVal: val, XShape: xshape, TotalK: totalK}, n1 + n2 + off, nil
}

// TransmittableResult pairs a round's step and batch identity with the
// per-tensor results a TrainingResult broadcast references by commitment;
// the blob the commitment hashes is EncodeBlob of its Results, not this
// type's Marshal form.
type TransmittableResult struct {
	Step    uint32
	BatchId types.BatchId
	Results []SerializedResult
}

// Marshal flattens a TransmittableResult as step(4) || batch_id(16) ||
// num_results(4) || results.
func (t TransmittableResult) Marshal() []byte {
	out := make([]byte, 0, 24+len(t.Results)*64)
	out = binary.BigEndian.AppendUint32(out, t.Step)
	out = append(out, t.BatchId.Bytes()...)
	out = binary.BigEndian.AppendUint32(out, uint32(len(t.Results)))
	for _, r := range t.Results {
		out = append(out, r.Marshal()...)
	}
	return out
}

// ErrShortTransmittable is returned when a marshaled TransmittableResult is
// truncated.
var ErrShortTransmittable = errors.New("distro: truncated transmittable result")

// UnmarshalTransmittableResult is the inverse of Marshal.
func UnmarshalTransmittableResult(b []byte) (TransmittableResult, error) {
	if len(b) < 24 {
		return TransmittableResult{}, ErrShortTransmittable
	}
	step := binary.BigEndian.Uint32(b[0:4])
	batchId := types.BatchId{
		Start: binary.BigEndian.Uint64(b[4:12]),
		End:   binary.BigEndian.Uint64(b[12:20]),
	}
	numResults := int(binary.BigEndian.Uint32(b[20:24]))
	rest := b[24:]
	results := make([]SerializedResult, numResults)
	for i := range results {
		r, n, err := UnmarshalSerializedResult(rest)
		if err != nil {
			return TransmittableResult{}, err
		}
		results[i] = r
		rest = rest[n:]
	}
	return TransmittableResult{Step: step, BatchId: batchId, Results: results}, nil
}
