package indicators

import (
	"fmt"

	"github.com/markcheno/go-talib"

	"chanlun/internal/models"
)

// Default MACD periods.
const (
	DefaultFastPeriod   = 12
	DefaultSlowPeriod   = 26
	DefaultSignalPeriod = 9
)

// MACD calculates Moving Average Convergence Divergence.
type MACD struct {
	fastPeriod   int
	slowPeriod   int
	signalPeriod int
}

// NewMACD creates a new MACD indicator with the given periods.
func NewMACD(fast, slow, signal int) *MACD {
	return &MACD{
		fastPeriod:   fast,
		slowPeriod:   slow,
		signalPeriod: signal,
	}
}

// DefaultMACD returns the 12/26/9 configuration.
func DefaultMACD() *MACD {
	return NewMACD(DefaultFastPeriod, DefaultSlowPeriod, DefaultSignalPeriod)
}

func (m *MACD) Name() string {
	return fmt.Sprintf("MACD_%d_%d_%d", m.fastPeriod, m.slowPeriod, m.signalPeriod)
}

// Lookback is the index of the first defined histogram value.
func (m *MACD) Lookback() int {
	return m.slowPeriod + m.signalPeriod - 2
}

// Period is the number of bars needed before the histogram is defined.
func (m *MACD) Period() int {
	return m.slowPeriod + m.signalPeriod
}

// Validate checks the periods.
func (m *MACD) Validate() error {
	if m.fastPeriod <= 0 || m.slowPeriod <= 0 || m.signalPeriod <= 0 {
		return ErrInvalidPeriod
	}
	if m.fastPeriod >= m.slowPeriod {
		return fmt.Errorf("%w: fast %d must be below slow %d", ErrInvalidPeriod, m.fastPeriod, m.slowPeriod)
	}
	return nil
}

// Calculate returns the macd, signal and histogram series aligned with bars.
func (m *MACD) Calculate(bars []models.Bar) (map[string][]float64, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if len(bars) < m.Period() {
		return nil, ErrInsufficientData
	}

	macd, signal, hist := talib.Macd(closePrices(bars), m.fastPeriod, m.slowPeriod, m.signalPeriod)
	return map[string][]float64{
		"macd":      macd,
		"signal":    signal,
		"histogram": hist,
	}, nil
}
