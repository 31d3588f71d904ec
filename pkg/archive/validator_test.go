package archive

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"
)

// fixtureEntry is one file in a hand-assembled archive. Fields default to a
// well-formed stored entry; tests flip individual knobs to produce the
// specific structural defect under test.
type fixtureEntry struct {
	name       string
	data       []byte
	flags      uint16
	method     uint16
	localExtra []byte
	cdExtra    []byte
	cdComment  string
	localSize  *uint32 // overrides the local header's compressed size field
	omitLocal  bool
	omitCD     bool
}

// fixtureArchive assembles raw ZIP bytes record by record, so tests control
// the exact layout a writer would normally get right.
type fixtureArchive struct {
	entries []*fixtureEntry

	zip64        bool
	omitLocator  bool
	locatorDelta int64

	recordsDelta int
	offsetDelta  int
	sizeDelta    int
	splitDisks   bool
	trailing     []byte
}

type archiveBuilder struct {
	buf bytes.Buffer
}

func (b *archiveBuilder) u16(v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	b.buf.Write(tmp[:])
}

func (b *archiveBuilder) u32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	b.buf.Write(tmp[:])
}

func (b *archiveBuilder) u64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	b.buf.Write(tmp[:])
}

func (fa *fixtureArchive) build() []byte {
	b := &archiveBuilder{}
	offsets := make(map[*fixtureEntry]uint32)

	for _, e := range fa.entries {
		if e.omitLocal {
			continue
		}
		offsets[e] = uint32(b.buf.Len())
		b.u32(sigLocalFile)
		b.u16(20) // version needed to extract
		b.u16(e.flags)
		b.u16(e.method)
		b.u16(0) // last mod time
		b.u16(0) // last mod date
		b.u32(crc32.ChecksumIEEE(e.data))
		csize := uint32(len(e.data))
		if e.localSize != nil {
			csize = *e.localSize
		}
		b.u32(csize)
		b.u32(uint32(len(e.data)))
		b.u16(uint16(len(e.name)))
		b.u16(uint16(len(e.localExtra)))
		b.buf.WriteString(e.name)
		b.buf.Write(e.localExtra)
		b.buf.Write(e.data)
	}

	cdStart := b.buf.Len()
	count := 0
	for _, e := range fa.entries {
		if e.omitCD {
			continue
		}
		b.u32(sigCentralDirectory)
		b.u16(20) // version made by
		b.u16(20) // version needed to extract
		b.u16(0)  // flags
		b.u16(e.method)
		b.u16(0) // last mod time
		b.u16(0) // last mod date
		b.u32(crc32.ChecksumIEEE(e.data))
		b.u32(uint32(len(e.data)))
		b.u32(uint32(len(e.data)))
		b.u16(uint16(len(e.name)))
		b.u16(uint16(len(e.cdExtra)))
		b.u16(uint16(len(e.cdComment)))
		b.u16(0) // disk number start
		b.u16(0) // internal attributes
		b.u32(0) // external attributes
		b.u32(offsets[e])
		b.buf.WriteString(e.name)
		b.buf.Write(e.cdExtra)
		b.buf.WriteString(e.cdComment)
		count++
	}
	cdSize := b.buf.Len() - cdStart

	if fa.zip64 {
		eocd64Offset := b.buf.Len()
		b.u32(sigEOCD64)
		b.u64(eocd64CoreSize)
		b.u16(45)
		b.u16(45)
		b.u32(0)
		b.u32(0)
		b.u64(uint64(count))
		b.u64(uint64(count))
		b.u64(uint64(cdSize))
		b.u64(uint64(cdStart))
		if !fa.omitLocator {
			b.u32(sigEOCD64Locator)
			b.u32(0)
			b.u64(uint64(int64(eocd64Offset) + fa.locatorDelta))
			b.u32(1)
		}
	}

	b.u32(sigEOCD)
	b.u16(0)
	b.u16(0)
	diskRecords := uint16(count + fa.recordsDelta)
	totalRecords := diskRecords
	if fa.splitDisks {
		totalRecords++
	}
	b.u16(diskRecords)
	b.u16(totalRecords)
	b.u32(uint32(cdSize + fa.sizeDelta))
	b.u32(uint32(cdStart + fa.offsetDelta))
	b.u16(0)

	b.buf.Write(fa.trailing)
	return b.buf.Bytes()
}

// directory is the central-directory truth for the fixture: what a
// CD-trusting oracle would report.
func (fa *fixtureArchive) directory() map[string]uint64 {
	sizes := make(map[string]uint64)
	for _, e := range fa.entries {
		if !e.omitCD {
			sizes[e.name] = uint64(len(e.data))
		}
	}
	return sizes
}

// stubOracle substitutes for the conventional reader in cases where it
// would reject the archive before the scan gets a chance to.
type stubOracle map[string]uint64

func (o stubOracle) Directory(string) (map[string]uint64, error) {
	return o, nil
}

func writeFixture(t *testing.T, raw []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.zip")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func expectReason(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected rejection %q, archive passed", want)
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T: %v", err, err)
	}
	if verr.Reason != want {
		t.Fatalf("expected reason %q, got %q", want, verr.Reason)
	}
}

func singleEntry() *fixtureArchive {
	return &fixtureArchive{entries: []*fixtureEntry{{name: "a", data: []byte("x")}}}
}

func TestValidateMinimalArchive(t *testing.T) {
	path := writeFixture(t, singleEntry().build())
	if err := Validate(path); err != nil {
		t.Fatalf("minimal archive rejected: %v", err)
	}
	ok, reason := Check(path)
	if !ok || reason != "" {
		t.Fatalf("Check = (%v, %q), want (true, \"\")", ok, reason)
	}
}

func TestValidateIsDeterministic(t *testing.T) {
	fa := singleEntry()
	fa.trailing = []byte{0}
	path := writeFixture(t, fa.build())
	ok1, reason1 := Check(path)
	ok2, reason2 := Check(path)
	if ok1 != ok2 || reason1 != reason2 {
		t.Fatalf("verdict changed between runs: (%v, %q) then (%v, %q)", ok1, reason1, ok2, reason2)
	}
}

func TestNotAZipFile(t *testing.T) {
	path := writeFixture(t, []byte("definitely not an archive"))
	expectReason(t, Validate(path), ReasonNotAZip)
}

func TestEmptyArchive(t *testing.T) {
	fa := &fixtureArchive{}
	path := writeFixture(t, fa.build())
	if err := ValidateWithOracle(path, stubOracle{}); err != nil {
		t.Fatalf("empty archive rejected: %v", err)
	}
}

func TestDuplicateLocalFilename(t *testing.T) {
	fa := &fixtureArchive{entries: []*fixtureEntry{
		{name: "a", data: []byte("x")},
		{name: "a", data: []byte("x")},
	}}
	path := writeFixture(t, fa.build())
	expectReason(t, Validate(path), ReasonDuplicateLocalName)
}

func TestDuplicateCentralDirectoryFilename(t *testing.T) {
	fa := &fixtureArchive{entries: []*fixtureEntry{
		{name: "a", data: []byte("x")},
		{name: "a", data: []byte("x"), omitLocal: true},
	}}
	path := writeFixture(t, fa.build())
	expectReason(t, Validate(path), ReasonDuplicateCDName)
}

func TestLocalFilenameNotInCentralDirectory(t *testing.T) {
	fa := &fixtureArchive{entries: []*fixtureEntry{
		{name: "a", data: []byte("x")},
		{name: "b", data: []byte("y"), omitCD: true},
	}}
	path := writeFixture(t, fa.build())
	expectReason(t, Validate(path), ReasonNameNotInCD)
}

func TestCentralDirectoryNameMissingFromLocalHeaders(t *testing.T) {
	fa := &fixtureArchive{entries: []*fixtureEntry{
		{name: "a", data: []byte("x")},
		{name: "b", data: []byte("y"), omitLocal: true},
	}}
	path := writeFixture(t, fa.build())
	expectReason(t, Validate(path), ReasonNameNotInLocal)
}

func TestDataDescriptorRejected(t *testing.T) {
	fa := &fixtureArchive{entries: []*fixtureEntry{
		{name: "a", data: []byte("x"), flags: flagDataDescriptor},
	}}
	path := writeFixture(t, fa.build())
	expectReason(t, Validate(path), ReasonDataDescriptor)
}

func TestCompressedSizeMismatch(t *testing.T) {
	lied := uint32(2)
	fa := &fixtureArchive{entries: []*fixtureEntry{
		{name: "a", data: []byte("x"), localSize: &lied},
	}}
	path := writeFixture(t, fa.build())
	expectReason(t, Validate(path), ReasonSizeMismatch)
}

func TestTrailingData(t *testing.T) {
	fa := singleEntry()
	fa.trailing = []byte{0x00}
	path := writeFixture(t, fa.build())
	expectReason(t, Validate(path), ReasonTrailingData)
}

func TestCommentInCentralDirectory(t *testing.T) {
	fa := &fixtureArchive{entries: []*fixtureEntry{
		{name: "a", data: []byte("x"), cdComment: "hidden"},
	}}
	path := writeFixture(t, fa.build())
	expectReason(t, Validate(path), ReasonCDComment)
}

func TestUnknownRecordSignature(t *testing.T) {
	raw := singleEntry().build()
	binary.LittleEndian.PutUint32(raw[0:4], 0xdeadbeef)
	path := writeFixture(t, raw)
	expectReason(t, Validate(path), ReasonUnknownSignature)
}

func TestUnprintableFilename(t *testing.T) {
	fa := &fixtureArchive{entries: []*fixtureEntry{
		{name: "a\x01b", data: []byte("x")},
	}}
	path := writeFixture(t, fa.build())
	expectReason(t, Validate(path), ReasonBadFilename)
}

func TestMismatchedRecordCount(t *testing.T) {
	for _, delta := range []int{-1, 1} {
		fa := singleEntry()
		fa.recordsDelta = delta
		path := writeFixture(t, fa.build())
		expectReason(t, ValidateWithOracle(path, stubOracle(fa.directory())), ReasonCDRecordsMismatch)
	}
}

func TestMismatchedDirectoryOffset(t *testing.T) {
	for _, delta := range []int{-1, 1} {
		fa := singleEntry()
		fa.offsetDelta = delta
		path := writeFixture(t, fa.build())
		expectReason(t, ValidateWithOracle(path, stubOracle(fa.directory())), ReasonCDOffsetMismatch)
	}
}

func TestMismatchedDirectorySize(t *testing.T) {
	fa := singleEntry()
	fa.sizeDelta = 1
	path := writeFixture(t, fa.build())
	expectReason(t, ValidateWithOracle(path, stubOracle(fa.directory())), ReasonCDSizeMismatch)
}

func TestMismatchedDiskCounts(t *testing.T) {
	fa := singleEntry()
	fa.splitDisks = true
	path := writeFixture(t, fa.build())
	expectReason(t, ValidateWithOracle(path, stubOracle(fa.directory())), ReasonMalformed)
}

func TestZip64Archive(t *testing.T) {
	fa := singleEntry()
	fa.zip64 = true
	path := writeFixture(t, fa.build())
	if err := Validate(path); err != nil {
		t.Fatalf("zip64 archive rejected: %v", err)
	}
}

func TestZip64LocatorOffsetMismatch(t *testing.T) {
	fa := singleEntry()
	fa.zip64 = true
	fa.locatorDelta = 1
	path := writeFixture(t, fa.build())
	expectReason(t, ValidateWithOracle(path, stubOracle(fa.directory())), ReasonLocatorMismatch)
}

func TestZip64WithoutLocator(t *testing.T) {
	fa := singleEntry()
	fa.zip64 = true
	fa.omitLocator = true
	path := writeFixture(t, fa.build())
	expectReason(t, ValidateWithOracle(path, stubOracle(fa.directory())), ReasonMalformed)
}

func TestZip64ExtraResolvesCompressedSize(t *testing.T) {
	sentinel := zip64SizeSentinel
	extra := zip64Extra(16, 1, 1)
	fa := &fixtureArchive{entries: []*fixtureEntry{
		{name: "a", data: []byte("x"), localSize: &sentinel, localExtra: extra},
	}}
	path := writeFixture(t, fa.build())
	if err := Validate(path); err != nil {
		t.Fatalf("archive with zip64 size extra rejected: %v", err)
	}
}

func TestZip64ExtraBadLength(t *testing.T) {
	extra := zip64Extra(12, 1, 1)
	fa := &fixtureArchive{entries: []*fixtureEntry{
		{name: "a", data: []byte("x"), localExtra: extra},
	}}
	path := writeFixture(t, fa.build())
	expectReason(t, Validate(path), ReasonMalformed)
}

func TestDuplicateZip64ExtraInLocalHeader(t *testing.T) {
	extra := append(zip64Extra(16, 1, 1), zip64Extra(16, 1, 1)...)
	fa := &fixtureArchive{entries: []*fixtureEntry{
		{name: "a", data: []byte("x"), localExtra: extra},
	}}
	path := writeFixture(t, fa.build())
	expectReason(t, Validate(path), ReasonDuplicateExtra)
}

func TestNonUnicodePathExtra(t *testing.T) {
	payload := append([]byte{1, 0, 0, 0, 0}, 0xff, 0xfe)
	fa := &fixtureArchive{entries: []*fixtureEntry{
		{name: "a", data: []byte("x"), localExtra: extraBlock(extraUnicodePath, payload)},
	}}
	path := writeFixture(t, fa.build())
	expectReason(t, Validate(path), ReasonNotUnicode)
}

// zip64Extra assembles a 0x0001 extended-information field whose payload is
// size bytes long, with uncompressed and compressed values in the first two
// slots when they fit.
func zip64Extra(size int, uncompressed, compressed uint64) []byte {
	payload := make([]byte, size)
	if size >= 8 {
		binary.LittleEndian.PutUint64(payload[0:], uncompressed)
	}
	if size >= 16 {
		binary.LittleEndian.PutUint64(payload[8:], compressed)
	}
	return extraBlock(extraZip64, payload)
}

func extraBlock(id uint16, payload []byte) []byte {
	block := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint16(block[0:], id)
	binary.LittleEndian.PutUint16(block[2:], uint16(len(payload)))
	copy(block[4:], payload)
	return block
}
