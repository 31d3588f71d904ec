package archive

import (
	"io"

	"github.com/kaitai-io/kaitai_struct_go_runtime/kaitai"
)

// Record signatures, little-endian, as they appear on the wire. Any other
// four bytes at a record boundary means the scan has lost alignment or the
// archive is trying to smuggle something past us.
const (
	sigLocalFile        uint32 = 0x04034b50
	sigCentralDirectory uint32 = 0x02014b50
	sigEOCD             uint32 = 0x06054b50
	sigEOCD64           uint32 = 0x06064b50
	sigEOCD64Locator    uint32 = 0x07064b50
	sigDataDescriptor   uint32 = 0x08074b50
)

const (
	// General-purpose bit 3: sizes are deferred to a trailing data
	// descriptor. Streaming archives cannot be size-validated up front.
	flagDataDescriptor uint16 = 0x0008

	methodStored uint16 = 0

	zip64SizeSentinel uint32 = 0xffffffff
	zip64CountSentinel uint16 = 0xffff

	// Fixed record sizes, excluding the 4-byte signature.
	lfhFixedSize    = 26
	cdhFixedSize    = 42
	eocdFixedSize   = 18
	eocd64FixedSize = 52

	// Size of one central directory record including its signature but
	// excluding the variable name/extra areas.
	cdhRecordSize = 46

	// The EOCD64 "size of record" field counts from just after itself; the
	// fixed fields it covers total 44 bytes, anything beyond is padding.
	eocd64CoreSize = 44
)

// cursor reads fixed-layout little-endian fields off a kaitai stream. The
// error is sticky: once any read comes up short the cursor reports
// ReasonMalformed and every later read is a no-op, so record readers can
// pull a whole field block and check once.
type cursor struct {
	s   *kaitai.Stream
	err error
}

func newCursor(s *kaitai.Stream) *cursor {
	return &cursor{s: s}
}

func (c *cursor) u2() uint16 {
	if c.err != nil {
		return 0
	}
	v, err := c.s.ReadU2le()
	if err != nil {
		c.err = fail(ReasonMalformed)
		return 0
	}
	return v
}

func (c *cursor) u4() uint32 {
	if c.err != nil {
		return 0
	}
	v, err := c.s.ReadU4le()
	if err != nil {
		c.err = fail(ReasonMalformed)
		return 0
	}
	return v
}

func (c *cursor) u8() uint64 {
	if c.err != nil {
		return 0
	}
	v, err := c.s.ReadU8le()
	if err != nil {
		c.err = fail(ReasonMalformed)
		return 0
	}
	return v
}

func (c *cursor) bytes(n int) []byte {
	if c.err != nil {
		return nil
	}
	b, err := c.s.ReadBytes(n)
	if err != nil {
		c.err = fail(ReasonMalformed)
		return nil
	}
	return b
}

// skip advances past n bytes without reading them. Used for compressed
// payloads, which the validator never inspects.
func (c *cursor) skip(n int64) {
	if c.err != nil {
		return
	}
	if _, err := c.s.Seek(n, io.SeekCurrent); err != nil {
		c.err = fail(ReasonMalformed)
	}
}

func (c *cursor) pos() int64 {
	if c.err != nil {
		return 0
	}
	p, err := c.s.Pos()
	if err != nil {
		c.err = fail(ReasonMalformed)
		return 0
	}
	return p
}

func (c *cursor) size() int64 {
	if c.err != nil {
		return 0
	}
	n, err := c.s.Size()
	if err != nil {
		c.err = fail(ReasonMalformed)
		return 0
	}
	return n
}

// readLocalFile consumes one local file header, its name and extra areas,
// and the compressed payload the header claims to precede. The cursor sits
// just after the 4-byte signature on entry.
func (sc *scanner) readLocalFile() error {
	cur := sc.cur
	cur.u2() // version needed to extract
	flags := cur.u2()
	method := cur.u2()
	cur.u2() // last mod time
	cur.u2() // last mod date
	cur.u4() // crc-32
	compressed := cur.u4()
	cur.u4() // uncompressed size
	nameLen := cur.u2()
	extraLen := cur.u2()
	name := cur.bytes(int(nameLen))
	extra := cur.bytes(int(extraLen))
	if cur.err != nil {
		return cur.err
	}

	if !printable(name) {
		return fail(ReasonBadFilename)
	}

	// A streaming entry defers its sizes to a trailing descriptor, which
	// makes the up-front size cross-check impossible. Reject outright.
	if flags&flagDataDescriptor != 0 {
		return fail(ReasonDataDescriptor)
	}

	fields, err := parseExtraFields(extra)
	if err != nil {
		return err
	}
	size, err := resolveCompressedSize(fields, compressed, method)
	if err != nil {
		return err
	}

	filename := string(name)
	want, ok := sc.sizes[filename]
	if !ok {
		return fail(ReasonNameNotInCD)
	}
	if size != want {
		return fail(ReasonSizeMismatch)
	}
	if _, dup := sc.state.localNames[filename]; dup {
		return fail(ReasonDuplicateLocalName)
	}
	sc.state.localNames[filename] = struct{}{}

	cur.skip(int64(size))
	return cur.err
}

// readCentralDirectory consumes one central directory record. start is the
// file offset of the record's signature.
func (sc *scanner) readCentralDirectory(start int64) error {
	cur := sc.cur
	cur.u2() // version made by
	cur.u2() // version needed to extract
	cur.u2() // general-purpose bit flags
	cur.u2() // compression method
	cur.u2() // last mod time
	cur.u2() // last mod date
	cur.u4() // crc-32
	cur.u4() // compressed size
	cur.u4() // uncompressed size
	nameLen := cur.u2()
	extraLen := cur.u2()
	commentLen := cur.u2()
	cur.u2() // disk number start
	cur.u2() // internal attributes
	cur.u4() // external attributes
	cur.u4() // local header offset
	if cur.err != nil {
		return cur.err
	}

	// Per-entry comments never survive an honest writer; a comment is a
	// place to stash bytes a streaming consumer will not see.
	if commentLen != 0 {
		return fail(ReasonCDComment)
	}

	name := cur.bytes(int(nameLen))
	extra := cur.bytes(int(extraLen))
	if cur.err != nil {
		return cur.err
	}
	if !printable(name) {
		return fail(ReasonBadFilename)
	}
	if _, err := parseExtraFields(extra); err != nil {
		return err
	}

	filename := string(name)
	if _, dup := sc.state.cdNames[filename]; dup {
		return fail(ReasonDuplicateCDName)
	}
	sc.state.cdNames[filename] = struct{}{}

	if sc.state.cdStart < 0 {
		sc.state.cdStart = start
	}
	sc.state.cdRecords++
	sc.state.cdSize += uint64(cdhRecordSize) + uint64(nameLen) + uint64(extraLen)
	return nil
}

// readEOCD consumes the end-of-central-directory record and runs the
// cross-directory checks against what the scan itself observed. Reaching it
// always terminates the scan.
func (sc *scanner) readEOCD(start int64) error {
	cur := sc.cur
	cur.u2() // disk number
	cur.u2() // disk where central directory starts
	diskRecords := cur.u2()
	totalRecords := cur.u2()
	cdSize := cur.u4()
	cdOffset := cur.u4()
	commentLen := cur.u2()
	if cur.err != nil {
		return cur.err
	}

	// Spanned archives are unsupported; a disagreement between the per-disk
	// and total counts means this claims to be one.
	if diskRecords != totalRecords {
		return fail(ReasonMalformed)
	}

	// The comment is skipped, not validated, but it must actually be there.
	cur.bytes(int(commentLen))
	if cur.err != nil {
		return cur.err
	}

	// Once the archive has announced itself as ZIP64, a bare legacy EOCD is
	// only acceptable after the locator has been seen and cross-checked.
	if sc.state.zip64Seen && !sc.state.locatorSeen {
		return fail(ReasonMalformed)
	}

	// An empty archive has its (empty) directory exactly where the EOCD is.
	if sc.state.cdStart < 0 {
		sc.state.cdStart = start
	}

	// In a ZIP64 archive the legacy fields may carry sentinels deferring to
	// the EOCD64, which was already checked when it was read.
	if !(sc.state.zip64Seen && totalRecords == zip64CountSentinel) {
		if uint64(totalRecords) != sc.state.cdRecords {
			return fail(ReasonCDRecordsMismatch)
		}
	}
	if !(sc.state.zip64Seen && cdOffset == zip64SizeSentinel) {
		if int64(cdOffset) != sc.state.cdStart {
			return fail(ReasonCDOffsetMismatch)
		}
	}
	if !(sc.state.zip64Seen && cdSize == zip64SizeSentinel) {
		if uint64(cdSize) != sc.state.cdSize {
			return fail(ReasonCDSizeMismatch)
		}
	}
	return nil
}

// readEOCD64 consumes a ZIP64 end-of-central-directory record and runs the
// same cross-directory checks as the legacy EOCD, with 64-bit fields.
func (sc *scanner) readEOCD64(start int64) error {
	cur := sc.cur
	recordSize := cur.u8()
	cur.u2() // version made by
	cur.u2() // version needed to extract
	cur.u4() // disk number
	cur.u4() // disk where central directory starts
	diskRecords := cur.u8()
	totalRecords := cur.u8()
	cdSize := cur.u8()
	cdOffset := cur.u8()
	if cur.err != nil {
		return cur.err
	}

	if diskRecords != totalRecords {
		return fail(ReasonMalformed)
	}
	if recordSize < eocd64CoreSize {
		return fail(ReasonMalformed)
	}
	// Extensible data beyond the fixed core is skipped.
	cur.skip(int64(recordSize - eocd64CoreSize))
	if cur.err != nil {
		return cur.err
	}

	if sc.state.cdStart < 0 {
		sc.state.cdStart = start
	}
	if totalRecords != sc.state.cdRecords {
		return fail(ReasonCDRecordsMismatch)
	}
	if cdOffset != uint64(sc.state.cdStart) {
		return fail(ReasonCDOffsetMismatch)
	}
	if cdSize != sc.state.cdSize {
		return fail(ReasonCDSizeMismatch)
	}

	sc.state.zip64Seen = true
	sc.state.zip64Offset = start
	return nil
}

// readEOCD64Locator consumes the ZIP64 locator and cross-checks the offset
// it records against where the EOCD64 record was actually observed.
func (sc *scanner) readEOCD64Locator() error {
	cur := sc.cur
	cur.u4() // disk with the start of the EOCD64
	offset := cur.u8()
	cur.u4() // total number of disks
	if cur.err != nil {
		return cur.err
	}

	if offset != uint64(sc.state.zip64Offset) {
		return fail(ReasonLocatorMismatch)
	}
	sc.state.locatorSeen = true
	return nil
}

// printable reports whether a raw filename is free of control bytes. The
// name is not required to be valid UTF-8 here; only the unicode-path extra
// carries that stricter requirement.
func printable(name []byte) bool {
	for _, b := range name {
		if b < 0x20 || b == 0x7f {
			return false
		}
	}
	return true
}
