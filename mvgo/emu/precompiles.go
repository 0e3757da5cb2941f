package emu

// Precompile memory conventions: multi-word values are little-endian both
// within a word and across words, so the byte image of a 256-bit value is the
// concatenation of its eight words in little-endian order.

func wordsToBytesLE(words []uint32) []byte {
	out := make([]byte, len(words)*4)
	for i, w := range words {
		out[i*4] = byte(w)
		out[i*4+1] = byte(w >> 8)
		out[i*4+2] = byte(w >> 16)
		out[i*4+3] = byte(w >> 24)
	}
	return out
}

func bytesToWordsLE(b []byte) []uint32 {
	out := make([]uint32, (len(b)+3)/4)
	for i, c := range b {
		out[i/4] |= uint32(c) << ((i % 4) * 8)
	}
	return out
}

// reverseBytes converts between the little-endian guest layout and the
// big-endian encodings the field libraries consume.
func reverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[len(b)-1-i] = c
	}
	return out
}
