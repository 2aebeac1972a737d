package broker

import (
	"fmt"
	"os"

	"github.com/gocarina/gocsv"
)

// CSVProvider reads an instrument universe from a security-master CSV file.
// The download itself is owned by whatever deposits the file; this provider
// only parses it, so a stale or missing file surfaces as ErrFeedUnavailable.
type CSVProvider struct {
	path string
}

var _ InstrumentProvider = (*CSVProvider)(nil)

// NewCSVProvider creates a provider reading from the given file path.
func NewCSVProvider(path string) *CSVProvider {
	return &CSVProvider{path: path}
}

// Instruments parses the security master. Columns beyond the ones declared on
// InstrumentRow are ignored.
func (p *CSVProvider) Instruments() ([]InstrumentRow, error) {
	f, err := os.Open(p.path) // #nosec G304 -- path comes from local configuration
	if err != nil {
		return nil, fmt.Errorf("%w: opening security master %s: %v", ErrFeedUnavailable, p.path, err)
	}
	defer func() { _ = f.Close() }()

	var rows []InstrumentRow
	if err := gocsv.UnmarshalFile(f, &rows); err != nil {
		return nil, fmt.Errorf("%w: parsing security master %s: %v", ErrFeedUnavailable, p.path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: security master %s is empty", ErrFeedUnavailable, p.path)
	}
	return rows, nil
}
