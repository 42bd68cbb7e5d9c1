package openai

import "encoding/binary"

// downsample converts little-endian 16-bit mono PCM from one sample rate
// to a lower one by linear interpolation. Returns the input unchanged when
// the rates match; fromRate must be at least toRate.
func downsample(in []byte, fromRate, toRate int) []byte {
	if fromRate == toRate {
		return in
	}
	inSamples := len(in) / 2
	if inSamples < 2 {
		return nil
	}

	step := float64(fromRate) / float64(toRate)
	outSamples := int(float64(inSamples) / step)
	out := make([]byte, outSamples*2)

	for i := 0; i < outSamples; i++ {
		pos := float64(i) * step
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := sampleAt(in, idx)
		s1 := sampleAt(in, idx+1)

		v := int16(float64(s0) + frac*(float64(s1)-float64(s0)))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

// sampleAt reads the idx-th sample, clamping past-the-end reads to the
// final sample so interpolation near the tail stays in bounds.
func sampleAt(buf []byte, idx int) int16 {
	off := idx * 2
	if off+1 >= len(buf) {
		off = len(buf) - 2
	}
	if off < 0 {
		return 0
	}
	return int16(binary.LittleEndian.Uint16(buf[off:]))
}
