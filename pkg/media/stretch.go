package media

import "fmt"

const (
	// atempoMin and atempoMax bound a single ffmpeg atempo filter.
	atempoMin = 0.5
	atempoMax = 2.0

	// MinSpeedFactor is the slow-down floor. Stretching below 0.9 introduces
	// audible artifacts, so requested factors are clamped here.
	MinSpeedFactor = 0.9

	// MaxChainedFactor and MinChainedFactor bound what a chained filter
	// graph will express end to end.
	MinChainedFactor = 0.25
	MaxChainedFactor = 8.0
)

// ClampSpeedFactor applies the slow-down floor and the chained-filter ceiling
// to a requested tempo factor.
func ClampSpeedFactor(factor float64) float64 {
	if factor < MinSpeedFactor {
		return MinSpeedFactor
	}
	if factor > MaxChainedFactor {
		return MaxChainedFactor
	}
	return factor
}

// AtempoChain decomposes a tempo factor into a chain of per-filter factors,
// each within the atempo-valid range [0.5, 2.0], whose product equals the
// requested factor. A factor of 5.0 yields [2.0, 2.0, 1.25].
func AtempoChain(factor float64) ([]float64, error) {
	if factor <= 0 {
		return nil, fmt.Errorf("%w: atempo: non-positive factor %.3f", ErrMedia, factor)
	}
	if factor < MinChainedFactor || factor > MaxChainedFactor {
		return nil, fmt.Errorf("%w: atempo: factor %.3f outside [%.2f, %.2f]", ErrMedia, factor, MinChainedFactor, MaxChainedFactor)
	}
	var chain []float64
	rest := factor
	for rest > atempoMax {
		chain = append(chain, atempoMax)
		rest /= atempoMax
	}
	for rest < atempoMin {
		chain = append(chain, atempoMin)
		rest /= atempoMin
	}
	chain = append(chain, rest)
	return chain, nil
}
