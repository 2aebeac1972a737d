package broker

import (
	"crypto/rand"
	"math/big"
	"time"

	"github.com/sirupsen/logrus"
)

// RetryConfig controls backoff behavior for instrument fetches.
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig is a conservative default: three retries with jittered
// exponential backoff.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:     3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     30 * time.Second,
}

// RetryProvider wraps an InstrumentProvider with retries. The feed transport
// owns retry policy, so this wrapper lives on the collaborator side rather
// than inside the cache.
type RetryProvider struct {
	inner  InstrumentProvider
	config RetryConfig
	logger *logrus.Logger
	sleep  func(time.Duration) // test hook
}

var _ InstrumentProvider = (*RetryProvider)(nil)

// NewRetryProvider wraps inner with the given retry configuration.
func NewRetryProvider(inner InstrumentProvider, logger *logrus.Logger, config ...RetryConfig) *RetryProvider {
	cfg := DefaultRetryConfig
	if len(config) > 0 {
		cfg = config[0]
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultRetryConfig.InitialBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = DefaultRetryConfig.MaxBackoff
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &RetryProvider{inner: inner, config: cfg, logger: logger, sleep: time.Sleep}
}

// Instruments fetches the universe, retrying failed attempts with backoff.
func (p *RetryProvider) Instruments() ([]InstrumentRow, error) {
	var lastErr error
	backoff := p.config.InitialBackoff

	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		rows, err := p.inner.Instruments()
		if err == nil {
			return rows, nil
		}
		lastErr = err

		if attempt < p.config.MaxRetries {
			p.logger.WithError(err).Warnf("Instrument fetch attempt %d/%d failed, retrying in %v",
				attempt+1, p.config.MaxRetries+1, backoff)
			p.sleep(backoff)
			backoff = p.nextBackoff(backoff)
		}
	}
	return nil, lastErr
}

func (p *RetryProvider) nextBackoff(current time.Duration) time.Duration {
	next := time.Duration(float64(current) * 1.5)
	if next > p.config.MaxBackoff {
		next = p.config.MaxBackoff
	}

	maxJitter := int64(next / 4)
	if maxJitter > 0 {
		if jitter, err := rand.Int(rand.Reader, big.NewInt(maxJitter)); err == nil {
			next += time.Duration(jitter.Int64())
		}
	}
	return next
}
