package cesr

// EncodeFixedData appends a fixed-width field (identifier + N-byte payload)
// to out. The header occupies 1, 2, or 3 lead bytes depending on how many
// bytes are needed to round N+1 up to a multiple of 3.
func EncodeFixedData(identifier uint32, data []byte, out []byte) []byte {
	n := len(data)
	total := nextMultipleOf3(n + 1)
	hdrBytes := total - n

	var word uint32
	switch hdrBytes {
	case 1:
		word = bits(identifier, 6) << 18
	case 2:
		word = D0<<18 | bits(identifier, 6)<<12
	case 3:
		word = D1<<18 | bits(identifier, 18)
	default:
		panic("cesr: fixed data header must be 1, 2, or 3 bytes")
	}

	out = append(out, headerBytes(word, hdrBytes)...)
	out = append(out, data...)
	return out
}

// EncodeVariableData appends a variable-length field (identifier + data) to
// out, choosing the short (6-bit identifier, 12-bit size) header form when
// both fit, else the long (18-bit identifier, 24-bit size) form. data is
// pre-padded with lead zero bytes so the encoded field is triplet-aligned.
func EncodeVariableData(identifier uint32, data []byte, out []byte) []byte {
	n := len(data)
	pad := (3 - n%3) % 3
	size := uint32((n + pad) / 3)

	if identifier < 64 && size < 1<<12 {
		selector := uint32(D4) + uint32(pad)
		word := selector<<18 | bits(identifier, 6)<<12 | bits(size, 12)
		out = append(out, headerBytes(word, 3)...)
	} else {
		if identifier >= 1<<18 || size >= 1<<24 {
			panic("cesr: variable data identifier or size exceeds the long-form field width")
		}
		selector := uint32(D7) + uint32(pad)
		word1 := selector<<18 | bits(identifier, 18)
		out = append(out, headerBytes(word1, 3)...)
		out = append(out, headerBytes(size, 3)...)
	}

	for i := 0; i < pad; i++ {
		out = append(out, 0)
	}
	out = append(out, data...)
	return out
}

// EncodeIndexedData appends an indexed field (identifier, index, N-byte
// payload). Indexed fields only support a 2-byte or 3-byte header (hdrBytes
// of 1 is not a representable indexed form).
func EncodeIndexedData(identifier, index uint32, data []byte, out []byte) []byte {
	n := len(data)
	total := nextMultipleOf3(n + 1)
	hdrBytes := total - n

	switch hdrBytes {
	case 1:
		panic("cesr: an indexed type can only have 0 or 2 lead bytes")
	case 2:
		word := bits(identifier, 6)<<18 | bits(index, 6)<<12
		out = append(out, headerBytes(word, 2)...)
	case 3:
		word := uint32(D0)<<18 | bits(identifier, 6)<<12 | bits(index, 12)
		out = append(out, headerBytes(word, 3)...)
	default:
		panic("cesr: indexed data header must be 2 or 3 bytes")
	}

	out = append(out, data...)
	return out
}

// EncodeCount appends a 3-byte count field: a group identifier and a 12-bit
// element count, used to frame attachment groups (signature lists, payload
// counts).
func EncodeCount(identifier, count uint32, out []byte) []byte {
	word := uint32(DASH)<<18 | bits(identifier, 6)<<12 | bits(count, 12)
	return append(out, headerBytes(word, 3)...)
}

// EncodeGenus appends the 6-byte genus+version marker that opens a TSP
// envelope: a 3-character protocol genus code and a (major, minor, patch)
// version triple, each component 6 bits wide.
func EncodeGenus(genus [3]byte, major, minor, patch uint32, out []byte) []byte {
	version := bits(major, 6)<<12 | bits(minor, 6)<<6 | bits(patch, 6)
	word1 := uint32(DASH)<<18 | uint32(DASH)<<12 | bits(sextet(genus[0]), 6)<<6 | bits(sextet(genus[1]), 6)
	word2 := bits(sextet(genus[2]), 6)<<18 | version
	out = append(out, headerBytes(word1, 3)...)
	out = append(out, headerBytes(word2, 3)...)
	return out
}
