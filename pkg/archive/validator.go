// Package archive proves that a ZIP archive has exactly one interpretation
// across the two families of ZIP consumers: readers that trust only the
// central directory at the end of the file, and readers that stream local
// file headers from the front. An archive the two views can disagree on is
// a parser-differential vector and is rejected before it reaches the index.
//
// The validator never decompresses anything. It walks the raw records once,
// front to back, cross-checking every local header against the central
// directory view supplied by an Oracle, and stops at the first violation.
package archive

import (
	"os"

	"github.com/kaitai-io/kaitai_struct_go_runtime/kaitai"
)

// scanState carries the accumulators of one pass. A fresh value per call
// keeps the validator reentrant; identical bytes always yield an identical
// verdict.
type scanState struct {
	localNames map[string]struct{}
	cdNames    map[string]struct{}

	cdRecords uint64
	cdSize    uint64
	cdStart   int64 // offset of the first central directory record, -1 until seen

	zip64Seen   bool
	locatorSeen bool
	zip64Offset int64
}

type scanner struct {
	cur   *cursor
	sizes map[string]uint64
	state scanState
}

// Validate scans the archive at path and returns nil if it passes, or a
// *ValidationError with a stable reason if it does not. No error other than
// a *ValidationError is ever returned.
func Validate(path string) error {
	return ValidateWithOracle(path, StandardLibraryOracle{})
}

// Check is the verdict shape the upload pipeline consumes: ok and an empty
// reason on pass, ok=false and the rejection reason otherwise.
func Check(path string) (bool, string) {
	if err := Validate(path); err != nil {
		return false, err.Error()
	}
	return true, ""
}

// ValidateWithOracle runs the scan against an explicit central-directory
// oracle. An oracle failure rejects the archive immediately with the
// oracle's own reason; the streaming pass never starts.
func ValidateWithOracle(path string, oracle Oracle) error {
	sizes, err := oracle.Directory(path)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fail(ReasonMalformed)
	}
	defer f.Close()

	sc := &scanner{
		cur:   newCursor(kaitai.NewStream(f)),
		sizes: sizes,
		state: scanState{
			localNames:  make(map[string]struct{}),
			cdNames:     make(map[string]struct{}),
			cdStart:     -1,
			zip64Offset: -1,
		},
	}
	return sc.run()
}

// run dispatches records by signature until the terminal EOCD. Ordering
// rules: once a ZIP64 EOCD has been seen, the only records allowed to
// follow are its locator and the final legacy EOCD.
func (sc *scanner) run() error {
	for {
		start := sc.cur.pos()
		sig := sc.cur.u4()
		if sc.cur.err != nil {
			return sc.cur.err
		}

		switch sig {
		case sigLocalFile:
			if sc.state.zip64Seen {
				return fail(ReasonMalformed)
			}
			if err := sc.readLocalFile(); err != nil {
				return err
			}
		case sigCentralDirectory:
			if sc.state.zip64Seen {
				return fail(ReasonMalformed)
			}
			if err := sc.readCentralDirectory(start); err != nil {
				return err
			}
		case sigEOCD64:
			if sc.state.zip64Seen {
				return fail(ReasonMalformed)
			}
			if err := sc.readEOCD64(start); err != nil {
				return err
			}
		case sigEOCD64Locator:
			if !sc.state.zip64Seen || sc.state.locatorSeen {
				return fail(ReasonMalformed)
			}
			if err := sc.readEOCD64Locator(); err != nil {
				return err
			}
		case sigEOCD:
			if err := sc.readEOCD(start); err != nil {
				return err
			}
			return sc.finish()
		case sigDataDescriptor:
			return fail(ReasonDataDescriptor)
		default:
			return fail(ReasonUnknownSignature)
		}
	}
}

// finish runs the end-of-scan checks: nothing may follow the terminal
// record, and the two header views must name exactly the same files.
func (sc *scanner) finish() error {
	pos := sc.cur.pos()
	size := sc.cur.size()
	if sc.cur.err != nil {
		return sc.cur.err
	}
	if pos < size {
		return fail(ReasonTrailingData)
	}

	for name := range sc.state.cdNames {
		if _, ok := sc.state.localNames[name]; !ok {
			return fail(ReasonNameNotInLocal)
		}
	}
	// Local names missing from the central directory were already caught
	// against the oracle during the scan; this is the defensive closing of
	// the other direction.
	for name := range sc.state.localNames {
		if _, ok := sc.state.cdNames[name]; !ok {
			return fail(ReasonNameNotInCD)
		}
	}
	return nil
}
