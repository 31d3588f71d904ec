package archive

import "archive/zip"

// Oracle supplies the central-directory view of an archive: the filename to
// compressed-size mapping a CD-trusting consumer would act on. The scan
// cross-checks every local file header against it, which is how a local
// header lying about its own size gets caught.
type Oracle interface {
	Directory(path string) (map[string]uint64, error)
}

// StandardLibraryOracle reads the central directory with archive/zip, the
// same conventional reader downstream mirrors and installers use.
type StandardLibraryOracle struct{}

func (StandardLibraryOracle) Directory(path string) (map[string]uint64, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fail(ReasonNotAZip)
	}
	defer r.Close()

	sizes := make(map[string]uint64, len(r.File))
	for _, f := range r.File {
		sizes[f.Name] = f.CompressedSize64
	}
	return sizes, nil
}
