package cesr

// MatchMode selects strict (exact byte match) or non-strict (pad bits of the
// final header byte ignored) header comparison. The original codec defaults
// to strict for self-generated streams and relaxes to non-strict only when
// re-parsing a text-origin CESR stream whose padding bits are
// implementation-defined.
type MatchMode bool

const (
	Strict    MatchMode = true
	NonStrict MatchMode = false
)

// DecodeFixedData consumes a fixed-width N-byte field with the given
// identifier from the front of stream. It returns the data and the number of
// bytes consumed, or ok=false if the header doesn't match or the stream is
// too short.
func DecodeFixedData(identifier uint32, n int, stream []byte, mode MatchMode) (data []byte, consumed int, ok bool) {
	total := nextMultipleOf3(n + 1)
	hdrBytes := total - n
	if len(stream) < total {
		return nil, 0, false
	}

	var word uint32
	switch hdrBytes {
	case 1:
		word = bits(identifier, 6) << 18
	case 2:
		word = D0<<18 | bits(identifier, 6)<<12
	case 3:
		word = D1<<18 | bits(identifier, 18)
	default:
		return nil, 0, false
	}

	if !headerMatch(stream[:hdrBytes], word, hdrBytes, bool(mode)) {
		return nil, 0, false
	}
	return stream[hdrBytes:total], total, true
}

// DecodeVariableData consumes a variable-length field with the given
// identifier. It tries the short (1-triplet) header form across all three
// lead-byte offsets, then the long (2-triplet) form, mirroring the original
// decoder's selector sweep.
func DecodeVariableData(identifier uint32, stream []byte, mode MatchMode) (data []byte, consumed int, ok bool) {
	if len(stream) < 3 {
		return nil, 0, false
	}
	word := extractTriplet(stream[:3])
	selector := word >> 18

	var foundID, size uint32
	var offset int
	switch {
	case selector >= D4 && selector <= D6:
		foundID = (word >> 12) & mask(6)
		size = word & mask(12)
		offset = int(selector - D4)
	case selector >= D7 && selector <= D9:
		if len(stream) < 6 {
			return nil, 0, false
		}
		foundID = word & mask(18)
		size = extractTriplet(stream[3:6])
		offset = int(selector - D4)
	default:
		return nil, 0, false
	}

	if foundID != identifier {
		return nil, 0, false
	}

	dataBegin := offset + 3
	dataEnd := nextMultipleOf3(offset+1) + 3*int(size)
	if len(stream) < dataEnd {
		return nil, 0, false
	}
	_ = mode // header form is unambiguous here; retained for API symmetry
	return stream[dataBegin:dataEnd], dataEnd, true
}

// DecodeIndexedData consumes an indexed N-byte field with the given
// identifier, returning the data, the decoded index, and bytes consumed.
func DecodeIndexedData(identifier uint32, n int, stream []byte, mode MatchMode) (data []byte, index uint32, consumed int, ok bool) {
	total := nextMultipleOf3(n + 1)
	hdrBytes := total - n
	if len(stream) < total {
		return nil, 0, 0, false
	}

	_ = mode // strict comparison only; indexed fields carry no text-origin padding ambiguity
	switch hdrBytes {
	case 2:
		hdr16 := uint32(stream[0])<<8 | uint32(stream[1])
		gotID := (hdr16 >> 10) & mask(6)
		if gotID != identifier {
			return nil, 0, 0, false
		}
		index = (hdr16 >> 4) & mask(6)
	case 3:
		word := extractTriplet(stream[:3])
		selector := word >> 18
		gotID := (word >> 12) & mask(6)
		if selector != D0 || gotID != identifier {
			return nil, 0, 0, false
		}
		index = word & mask(12)
	default:
		return nil, 0, 0, false
	}

	return stream[hdrBytes:total], index, total, true
}

// DecodeCount consumes a 3-byte count field with the given identifier,
// returning the decoded count.
func DecodeCount(identifier uint32, stream []byte, mode MatchMode) (count uint32, consumed int, ok bool) {
	if len(stream) < 3 {
		return 0, 0, false
	}
	word := extractTriplet(stream[:3])
	index := word & mask(12)
	expected := uint32(DASH)<<18 | bits(identifier, 6)<<12 | bits(index, 12)
	if !headerMatch(stream[:3], expected, 3, bool(mode)) {
		return 0, 0, false
	}
	return index, 3, true
}

// DecodeGenus consumes the 6-byte genus+version marker, returning the genus
// code and (major, minor, patch) version triple.
func DecodeGenus(stream []byte, mode MatchMode) (genus [3]byte, major, minor, patch uint32, consumed int, ok bool) {
	if len(stream) < 6 {
		return genus, 0, 0, 0, 0, false
	}
	word1 := extractTriplet(stream[:3])
	word2 := extractTriplet(stream[3:6])

	g0 := (word1 >> 6) & mask(6)
	g1 := word1 & mask(6)
	g2 := (word2 >> 18) & mask(6)
	version := word2 & mask(18)

	wantWord1 := uint32(DASH)<<18 | uint32(DASH)<<12 | g0<<6 | g1
	if !headerMatch(stream[:3], wantWord1, 3, bool(mode)) {
		return genus, 0, 0, 0, 0, false
	}

	major = (version >> 12) & mask(6)
	minor = (version >> 6) & mask(6)
	patch = version & mask(6)

	genus = [3]byte{unsextet(g0), unsextet(g1), unsextet(g2)}
	return genus, major, minor, patch, 6, true
}

// unsextet inverts sextet for display/round-trip of genus code bytes.
func unsextet(v uint32) byte {
	switch {
	case v < 26:
		return byte('A' + v)
	case v < 52:
		return byte('a' + (v - 26))
	case v < 62:
		return byte('0' + (v - 52))
	case v == 62:
		return '-'
	default:
		return '_'
	}
}
