package cesr

import "testing"

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestFixedDataRoundtrip(t *testing.T) {
	cases := []struct {
		ident uint32
		data  []byte
		want  []byte
	}{
		{12, []byte{1, 2}, []byte{0x30, 0x01, 0x02}},
		{5, []byte{1, 2, 3}, []byte{0xD4, 0x00, 0x05, 0x01, 0x02, 0x03}},
	}
	for _, c := range cases {
		got := EncodeFixedData(c.ident, c.data, nil)
		if !bytesEqual(got, c.want) {
			t.Fatalf("EncodeFixedData(%d, %v) = %x, want %x", c.ident, c.data, got, c.want)
		}
		data, n, ok := DecodeFixedData(c.ident, len(c.data), got, Strict)
		if !ok {
			t.Fatalf("DecodeFixedData(%d) failed to match its own encoding", c.ident)
		}
		if n != len(got) || !bytesEqual(data, c.data) {
			t.Fatalf("DecodeFixedData(%d) = %v/%d, want %v/%d", c.ident, data, n, c.data, len(got))
		}
	}
}

func TestFixedDataIdentifierOverflowPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for an identifier that does not fit its header width")
		}
	}()
	// 11 data bytes -> 1 lead byte -> 6-bit identifier field; 64 overflows it.
	EncodeFixedData(64, make([]byte, 11), nil)
}

func TestVariableDataRoundtrip(t *testing.T) {
	content := []byte{0x6d, 0xaa, 0xdf} // 3 bytes, "barf" base64url-decoded
	got := EncodeVariableData(0, content, nil)
	want := []byte{0xE0, 0x00, 0x01, 0x6d, 0xaa, 0xdf}
	if !bytesEqual(got, want) {
		t.Fatalf("EncodeVariableData(0, barf) = %x, want %x", got, want)
	}
	data, n, ok := DecodeVariableData(0, got, Strict)
	if !ok || n != len(got) || !bytesEqual(data, content) {
		t.Fatalf("DecodeVariableData round-trip failed: data=%x n=%d ok=%v", data, n, ok)
	}
}

func TestVariableDataPromotesToLongFormForLargeIdentifier(t *testing.T) {
	short := EncodeVariableData(42, []byte("hi"), nil)
	long := EncodeVariableData(122, []byte("hi"), nil)
	if short[0] == long[0] {
		t.Fatalf("expected different selector byte for a large identifier forcing long form: %x vs %x", short[0], long[0])
	}
	data, n, ok := DecodeVariableData(122, long, Strict)
	if !ok || n != len(long) || string(data) != "hi" {
		t.Fatalf("long-form round-trip failed: data=%q n=%d ok=%v", data, n, ok)
	}
}

func TestVariableDataDifferentPaddingChangesSelector(t *testing.T) {
	a := EncodeVariableData(0, make([]byte, 4095), nil) // pad 0
	b := EncodeVariableData(0, make([]byte, 4096), nil) // pad 2
	if a[0] == b[0] {
		t.Fatal("expected differing lead-byte count to change the selector byte")
	}
}

func TestVariableDataExcessiveFieldSizePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for a size exceeding the 24-bit long-form field")
		}
	}()
	EncodeVariableData(0, make([]byte, 50331646), nil)
}

func TestIndexedDataRoundtrip(t *testing.T) {
	data := []byte("SECRET KEY") // 10 bytes -> 2 lead bytes
	got := EncodeIndexedData(5, 3, data, nil)
	out, idx, n, ok := DecodeIndexedData(5, len(data), got, Strict)
	if !ok || n != len(got) || idx != 3 || !bytesEqual(out, data) {
		t.Fatalf("indexed round-trip failed: out=%v idx=%d n=%d ok=%v", out, idx, n, ok)
	}
}

func TestIndexedDataOneLeadBytePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic: indexed data cannot have exactly 1 lead byte")
		}
	}()
	// 11 bytes -> 1 lead byte, which indexed fields cannot represent.
	EncodeIndexedData(5, 0, make([]byte, 11), nil)
}

func TestCountRoundtrip(t *testing.T) {
	got := EncodeCount(Ident("H"), 7, nil)
	n, consumed, ok := DecodeCount(Ident("H"), got, Strict)
	if !ok || consumed != 3 || n != 7 {
		t.Fatalf("count round-trip failed: n=%d consumed=%d ok=%v", n, consumed, ok)
	}
}

func TestGenusVersionRoundtrip(t *testing.T) {
	var out []byte
	out = EncodeVersionMarker(out)
	consumed, err := DecodeVersionMarker(out)
	if err != nil {
		t.Fatalf("DecodeVersionMarker: %v", err)
	}
	if consumed != 6 {
		t.Fatalf("consumed = %d, want 6", consumed)
	}
}

func TestIdentAndCode(t *testing.T) {
	if Ident("B") != 1 {
		t.Fatalf("Ident(\"B\") = %d, want 1", Ident("B"))
	}
	if Ident("-") != DASH {
		t.Fatalf("Ident(\"-\") = %d, want %d", Ident("-"), DASH)
	}
	code := Code("XSCS")
	if len(code) != 3 {
		t.Fatalf("Code must be 3 raw bytes, got %d", len(code))
	}
}
