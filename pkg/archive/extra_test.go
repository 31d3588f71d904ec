package archive

import (
	"bytes"
	"testing"
)

func TestParseExtraFieldsWalk(t *testing.T) {
	raw := append(extraBlock(0x5455, []byte{1, 2, 3, 4, 5}), extraBlock(0x7875, []byte{1})...)
	fields, err := parseExtraFields(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(fields))
	}
	if fields[0].id != 0x5455 || !bytes.Equal(fields[0].payload, []byte{1, 2, 3, 4, 5}) {
		t.Errorf("first field = (%#x, %v)", fields[0].id, fields[0].payload)
	}
	if fields[1].id != 0x7875 || !bytes.Equal(fields[1].payload, []byte{1}) {
		t.Errorf("second field = (%#x, %v)", fields[1].id, fields[1].payload)
	}
}

func TestParseExtraFieldsEmpty(t *testing.T) {
	fields, err := parseExtraFields(nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(fields) != 0 {
		t.Fatalf("expected no fields, got %d", len(fields))
	}
}

func TestParseExtraFieldsTruncatedHeader(t *testing.T) {
	_, err := parseExtraFields([]byte{0x01, 0x00, 0x04})
	expectReason(t, err, ReasonMalformed)
}

func TestParseExtraFieldsPayloadOverrun(t *testing.T) {
	raw := extraBlock(0x5455, []byte{1, 2, 3})
	_, err := parseExtraFields(raw[:len(raw)-1])
	expectReason(t, err, ReasonMalformed)
}

func TestParseExtraFieldsDuplicateZip64(t *testing.T) {
	raw := append(zip64Extra(16, 1, 1), zip64Extra(16, 1, 1)...)
	_, err := parseExtraFields(raw)
	expectReason(t, err, ReasonDuplicateExtra)
}

func TestParseExtraFieldsDuplicateUnicodePath(t *testing.T) {
	block := extraBlock(extraUnicodePath, []byte{1, 0, 0, 0, 0, 'a'})
	_, err := parseExtraFields(append(block, block...))
	expectReason(t, err, ReasonDuplicateExtra)
}

func TestUnicodePathValidation(t *testing.T) {
	cases := []struct {
		name    string
		payload []byte
		want    string
	}{
		{"valid utf8 name", []byte{1, 0, 0, 0, 0, 'd', 'o', 'c', '.', 't', 'x', 't'}, ""},
		{"truncated header", []byte{1, 0, 0}, ReasonMalformed},
		{"invalid utf8", []byte{1, 0, 0, 0, 0, 0xff, 0xfe}, ReasonNotUnicode},
		{"control byte in name", []byte{1, 0, 0, 0, 0, 'a', 0x07}, ReasonBadFilename},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := checkUnicodePath(tc.payload)
			if tc.want == "" {
				if err != nil {
					t.Fatalf("unexpected rejection: %v", err)
				}
				return
			}
			expectReason(t, err, tc.want)
		})
	}
}

func TestResolveCompressedSize(t *testing.T) {
	cases := []struct {
		name   string
		fields []extraField
		plain  uint32
		method uint16
		want   uint64
		reason string
	}{
		{"no zip64 extra", nil, 42, methodStored, 42, ""},
		{"empty payload, plain size", []extraField{{id: extraZip64}}, 42, methodStored, 42, ""},
		{"empty payload, sentinel", []extraField{{id: extraZip64}}, zip64SizeSentinel, methodStored, 0, ReasonMalformed},
		{"8-byte payload, stored", []extraField{{id: extraZip64, payload: le64(7)}}, zip64SizeSentinel, methodStored, 7, ""},
		{"8-byte payload, compressed", []extraField{{id: extraZip64, payload: le64(7)}}, zip64SizeSentinel, 8, 0, ReasonMalformed},
		{"16-byte payload", []extraField{{id: extraZip64, payload: append(le64(9), le64(5)...)}}, zip64SizeSentinel, 8, 5, ""},
		{"24-byte payload", []extraField{{id: extraZip64, payload: append(append(le64(9), le64(5)...), le64(3)...)}}, zip64SizeSentinel, 8, 5, ""},
		{"odd payload length", []extraField{{id: extraZip64, payload: make([]byte, 12)}}, zip64SizeSentinel, methodStored, 0, ReasonMalformed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := resolveCompressedSize(tc.fields, tc.plain, tc.method)
			if tc.reason != "" {
				expectReason(t, err, tc.reason)
				return
			}
			if err != nil {
				t.Fatalf("unexpected rejection: %v", err)
			}
			if got != tc.want {
				t.Fatalf("size = %d, want %d", got, tc.want)
			}
		})
	}
}

func le64(v uint64) []byte {
	b := make([]byte, 8)
	for i := range b {
		b[i] = byte(v >> (8 * i))
	}
	return b
}
