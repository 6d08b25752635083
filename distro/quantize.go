package distro

// QuantizeSign converts a Float32 tensor of values into a Bool tensor
// recording each value's sign (true for > 0), the optional 1-bit
// quantization applied to a gradient's value tensor. Paired with
// NewSerializableTensor this cuts a sparse_val tensor's wire size from
// four bytes per value to one bit per value.
func QuantizeSign(values Tensor) (Tensor, error) {
	vs, err := values.Float32Values()
	if err != nil {
		return Tensor{}, err
	}
	bits := make([]bool, len(vs))
	for i, v := range vs {
		bits[i] = v > 0
	}
	return BoolTensor(values.Dims, bits), nil
}

// DequantizeSign is the inverse of QuantizeSign: it maps a Bool tensor's
// true/false back to +1/-1 magnitude-one floats, so a sign-quantized
// tensor round-trips exactly after sign decoding.
func DequantizeSign(bits Tensor) (Tensor, error) {
	bs, err := bits.BoolValues()
	if err != nil {
		return Tensor{}, err
	}
	out := make([]float32, len(bs))
	for i, b := range bs {
		if b {
			out[i] = 1
		} else {
			out[i] = -1
		}
	}
	return Float32Tensor(bits.Dims, out), nil
}
