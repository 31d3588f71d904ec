package archive

import (
	"encoding/binary"
	"unicode/utf8"
)

// Extra-field ids with structural meaning for the validator. Both are in
// the disallow-duplicate set: one header carrying two of either is a
// smuggling vector, not a writer quirk.
const (
	extraZip64       uint16 = 0x0001
	extraUnicodePath uint16 = 0x7075
)

// The Info-ZIP unicode path payload is version(1) + name crc-32(4) + UTF-8
// name.
const unicodePathHeaderSize = 5

// extraField is one decoded (id, payload) pair from a header's extra area.
type extraField struct {
	id      uint16
	payload []byte
}

// parseExtraFields walks the raw extra area of a local or central directory
// header. Truncated field headers or payloads overrunning the area are
// malformed; duplicate occurrences of a disallowed id are rejected; any
// unicode-path field is validated in place.
func parseExtraFields(raw []byte) ([]extraField, error) {
	var fields []extraField
	seen := make(map[uint16]bool)
	for len(raw) > 0 {
		if len(raw) < 4 {
			return nil, fail(ReasonMalformed)
		}
		id := binary.LittleEndian.Uint16(raw)
		size := int(binary.LittleEndian.Uint16(raw[2:]))
		if len(raw) < 4+size {
			return nil, fail(ReasonMalformed)
		}
		payload := raw[4 : 4+size]

		switch id {
		case extraZip64, extraUnicodePath:
			if seen[id] {
				return nil, fail(ReasonDuplicateExtra)
			}
			seen[id] = true
		}
		if id == extraUnicodePath {
			if err := checkUnicodePath(payload); err != nil {
				return nil, err
			}
		}

		fields = append(fields, extraField{id: id, payload: payload})
		raw = raw[4+size:]
	}
	return fields, nil
}

// checkUnicodePath validates an Info-ZIP unicode path payload: the embedded
// name must be valid UTF-8 and carry no control bytes.
func checkUnicodePath(payload []byte) error {
	if len(payload) < unicodePathHeaderSize {
		return fail(ReasonMalformed)
	}
	name := payload[unicodePathHeaderSize:]
	if !utf8.Valid(name) {
		return fail(ReasonNotUnicode)
	}
	if !printable(name) {
		return fail(ReasonBadFilename)
	}
	return nil
}

// resolveCompressedSize produces the compressed size a streaming consumer
// would act on for a local file header: the plain 32-bit field, unless a
// ZIP64 extended-information field reinterprets it.
//
// The ZIP64 payload layouts are positional: 8 bytes is the uncompressed
// size alone, 16/24/28 bytes place an explicit compressed size at offset 8.
// An empty payload is only legal when the plain field is not the sentinel,
// and the 8-byte layout only determines the compressed size for stored
// entries, where the two sizes coincide.
func resolveCompressedSize(fields []extraField, plain uint32, method uint16) (uint64, error) {
	var zip64 []byte
	found := false
	for _, f := range fields {
		if f.id == extraZip64 {
			zip64 = f.payload
			found = true
			break
		}
	}
	if !found {
		return uint64(plain), nil
	}

	switch len(zip64) {
	case 0:
		if plain == zip64SizeSentinel {
			return 0, fail(ReasonMalformed)
		}
		return uint64(plain), nil
	case 8:
		if method != methodStored {
			return 0, fail(ReasonMalformed)
		}
		return binary.LittleEndian.Uint64(zip64), nil
	case 16, 24, 28:
		return binary.LittleEndian.Uint64(zip64[8:]), nil
	default:
		return 0, fail(ReasonMalformed)
	}
}
