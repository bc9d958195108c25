package rewards

import "github.com/shopspring/decimal"

const (
	// DefaultBaselineKWh is used when history is too short to estimate.
	DefaultBaselineKWh = 2.0
	// BaselineWindow caps how many recent readings are averaged.
	BaselineWindow = 10
	// MinBaselinePoints is the minimum history length for an estimate.
	MinBaselinePoints = 3
	// PeakStartHour and PeakEndHour bound the evening peak, inclusive.
	PeakStartHour = 17
	PeakEndHour   = 20
	// PeakFactor scales the baseline for sessions starting in the peak.
	PeakFactor = 1.3
)

// BaselineEstimator turns recent daily readings into an expected session draw.
type BaselineEstimator struct {
	Window     int
	MinPoints  int
	Default    float64
	PeakStart  int
	PeakEnd    int
	PeakFactor float64
}

// NewBaselineEstimator returns an estimator with the reference parameters.
func NewBaselineEstimator() BaselineEstimator {
	return BaselineEstimator{
		Window:     BaselineWindow,
		MinPoints:  MinBaselinePoints,
		Default:    DefaultBaselineKWh,
		PeakStart:  PeakStartHour,
		PeakEnd:    PeakEndHour,
		PeakFactor: PeakFactor,
	}
}

// Estimate returns the baseline kWh for a session starting at startHour.
// Readings are ordered oldest first.
func (e BaselineEstimator) Estimate(history []float64, startHour int) float64 {
	if len(history) < e.MinPoints || len(history) == 0 {
		return e.Default
	}
	baseline := windowMean(history, e.Window)
	if e.IsPeakHour(startHour) {
		baseline *= e.PeakFactor
	}
	return RoundKWh(baseline)
}

// IsPeakHour reports whether hour falls in the peak window.
func (e BaselineEstimator) IsPeakHour(hour int) bool {
	return hour >= e.PeakStart && hour <= e.PeakEnd
}

func windowMean(history []float64, window int) float64 {
	if window <= 0 || window > len(history) {
		window = len(history)
	}
	recent := history[len(history)-window:]
	var sum float64
	for _, v := range recent {
		sum += v
	}
	return sum / float64(len(recent))
}

// RoundKWh rounds an energy figure to 2 decimals.
func RoundKWh(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
