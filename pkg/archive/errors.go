package archive

// Rejection reasons surfaced to uploaders. These strings are part of the
// upload API contract: test fixtures and end-user error messages depend on
// the exact text, so changing one is a breaking change.
const (
	ReasonNotAZip            = "File is not a zip file"
	ReasonMalformed          = "Malformed zip file"
	ReasonUnknownSignature   = "Unknown record signature"
	ReasonDuplicateLocalName = "Duplicate filename in local headers"
	ReasonDuplicateCDName    = "Duplicate filename in central directory"
	ReasonNameNotInCD        = "Filename not in central directory"
	ReasonNameNotInLocal     = "Missing filename in local headers"
	ReasonSizeMismatch       = "Mis-matched data size"
	ReasonDataDescriptor     = "ZIP contains a data descriptor"
	ReasonDuplicateExtra     = "Duplicate extra field"
	ReasonBadFilename        = "Unprintable characters in filename"
	ReasonNotUnicode         = "Filename is not valid unicode"
	ReasonCDComment          = "Comment in central directory"
	ReasonLocatorMismatch    = "Mis-matched EOCD64 record and locator offset"
	ReasonCDRecordsMismatch  = "Mismatched central directory records"
	ReasonCDOffsetMismatch   = "Mismatched central directory offset"
	ReasonCDSizeMismatch     = "Bad magic number for central directory"
	ReasonTrailingData       = "Trailing data"
)

// ValidationError is the terminal outcome of a failed scan. Reason always
// holds one of the Reason constants above.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func fail(reason string) error {
	return &ValidationError{Reason: reason}
}
