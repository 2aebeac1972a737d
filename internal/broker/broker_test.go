package broker

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const masterCSV = `SEM_SMST_SECURITY_ID,SEM_TRADING_SYMBOL,SEM_CUSTOM_SYMBOL,SEM_INSTRUMENT_NAME,SEM_OPTION_TYPE,SEM_STRIKE_PRICE,SEM_EXPIRY_DATE,SEM_LOT_UNITS,SEM_EXCHANGE
41003,NIFTY-Sep2026-24050-CE,NIFTY 03 SEP 24050 CALL,OPTIDX,CE,24050.0,2026-09-03,65.0,NSE
41004,NIFTY-Sep2026-24050-PE,NIFTY 03 SEP 24050 PUT,OPTIDX,PE,24050.0,2026-09-03,65.0,NSE
`

func writeMaster(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "master.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCSVProviderParsesMaster(t *testing.T) {
	p := NewCSVProvider(writeMaster(t, masterCSV))

	rows, err := p.Instruments()
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "41003", rows[0].SecurityID)
	assert.Equal(t, "NIFTY-Sep2026-24050-CE", rows[0].TradingSymbol)
	assert.Equal(t, "OPTIDX", rows[0].InstrumentName)
	assert.Equal(t, "CE", rows[0].OptionType)
	assert.Equal(t, 24050.0, rows[0].StrikePrice)
	assert.Equal(t, "2026-09-03", rows[0].ExpiryDate)
	assert.Equal(t, 65.0, rows[0].LotSize)
	assert.Equal(t, "PE", rows[1].OptionType)
}

func TestCSVProviderMissingFile(t *testing.T) {
	p := NewCSVProvider(filepath.Join(t.TempDir(), "absent.csv"))

	_, err := p.Instruments()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFeedUnavailable))
}

func TestCSVProviderEmptyFile(t *testing.T) {
	header := "SEM_SMST_SECURITY_ID,SEM_TRADING_SYMBOL,SEM_CUSTOM_SYMBOL,SEM_INSTRUMENT_NAME,SEM_OPTION_TYPE,SEM_STRIKE_PRICE,SEM_EXPIRY_DATE,SEM_LOT_UNITS\n"
	p := NewCSVProvider(writeMaster(t, header))

	_, err := p.Instruments()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFeedUnavailable))
}

// flakyProvider fails a fixed number of times before succeeding.
type flakyProvider struct {
	failures int
	calls    int
}

func (f *flakyProvider) Instruments() ([]InstrumentRow, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, fmt.Errorf("%w: transient", ErrFeedUnavailable)
	}
	return []InstrumentRow{{SecurityID: "41003"}}, nil
}

func TestRetryProviderRecovers(t *testing.T) {
	inner := &flakyProvider{failures: 2}
	p := NewRetryProvider(inner, nil)
	p.sleep = func(time.Duration) {}

	rows, err := p.Instruments()
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryProviderExhaustsAttempts(t *testing.T) {
	inner := &flakyProvider{failures: 10}
	p := NewRetryProvider(inner, nil, RetryConfig{MaxRetries: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond})
	p.sleep = func(time.Duration) {}

	_, err := p.Instruments()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFeedUnavailable))
	assert.Equal(t, 3, inner.calls, "initial attempt plus two retries")
}

func TestFallbackProvider(t *testing.T) {
	primary := &flakyProvider{failures: 100}
	secondary := &flakyProvider{failures: 0}
	p := NewFallbackProvider(primary, secondary, nil)

	rows, err := p.Instruments()
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, 1, secondary.calls)
}

func TestFallbackProviderBothFail(t *testing.T) {
	p := NewFallbackProvider(&flakyProvider{failures: 100}, &flakyProvider{failures: 100}, nil)

	_, err := p.Instruments()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFeedUnavailable))
}

func TestFallbackProviderWithoutSecondary(t *testing.T) {
	p := NewFallbackProvider(&flakyProvider{failures: 100}, nil, nil)

	_, err := p.Instruments()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFeedUnavailable))
}

// stubFeed implements Feed for breaker tests.
type stubFeed struct {
	err   error
	calls int
}

func (s *stubFeed) Instruments() ([]InstrumentRow, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return []InstrumentRow{{SecurityID: "41003"}}, nil
}

func (s *stubFeed) LastPrices(ids []string) (map[string]float64, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	prices := make(map[string]float64, len(ids))
	for _, id := range ids {
		prices[id] = 100
	}
	return prices, nil
}

func TestCircuitBreakerPassesThrough(t *testing.T) {
	feed := &stubFeed{}
	cb := NewCircuitBreakerFeed(feed, nil)

	rows, err := cb.Instruments()
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	prices, err := cb.LastPrices([]string{"41003"})
	require.NoError(t, err)
	assert.Equal(t, 100.0, prices["41003"])
}

func TestCircuitBreakerOpensAfterRepeatedFailures(t *testing.T) {
	feed := &stubFeed{err: fmt.Errorf("%w: down", ErrFeedUnavailable)}
	cb := NewCircuitBreakerFeedWithSettings(feed, nil, CircuitBreakerSettings{
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		MinRequests:  3,
		FailureRatio: 0.6,
	})

	for i := 0; i < 3; i++ {
		_, err := cb.Instruments()
		require.Error(t, err)
	}
	callsWhenTripped := feed.calls

	// Once open, calls are shed without reaching the feed.
	_, err := cb.Instruments()
	require.Error(t, err)
	assert.Equal(t, callsWhenTripped, feed.calls)
}
