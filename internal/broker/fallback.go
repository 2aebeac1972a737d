package broker

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// FallbackProvider tries a primary instrument source and falls back to a
// secondary last-known-good source when the primary fails. Both failing is
// reported as a single feed failure.
type FallbackProvider struct {
	primary   InstrumentProvider
	secondary InstrumentProvider
	logger    *logrus.Logger
}

var _ InstrumentProvider = (*FallbackProvider)(nil)

// NewFallbackProvider creates a provider chain. secondary may be nil, in
// which case primary failures propagate directly.
func NewFallbackProvider(primary, secondary InstrumentProvider, logger *logrus.Logger) *FallbackProvider {
	if logger == nil {
		logger = logrus.New()
	}
	return &FallbackProvider{primary: primary, secondary: secondary, logger: logger}
}

// Instruments fetches from the primary source, then the secondary.
func (p *FallbackProvider) Instruments() ([]InstrumentRow, error) {
	rows, err := p.primary.Instruments()
	if err == nil {
		return rows, nil
	}
	if p.secondary == nil {
		return nil, err
	}

	p.logger.WithError(err).Warn("Primary instrument source failed, trying fallback")
	rows, ferr := p.secondary.Instruments()
	if ferr != nil {
		return nil, fmt.Errorf("%w: primary: %v; fallback: %v", ErrFeedUnavailable, err, ferr)
	}
	return rows, nil
}
