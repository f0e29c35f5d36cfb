// Package dice provides the randomness abstraction for combat rolls.
package dice

import "go.uber.org/zap"

// Source produces uniformly distributed random integers.
// Tests substitute deterministic sources; production code uses NewCryptoSource.
type Source interface {
	// Intn returns a random int in [0, n). Requires n > 0.
	Intn(n int) int
}

// Percent rolls a percentile value in [1, 100] from src.
//
// Precondition: src must be non-nil.
// Postcondition: Returns a value in [1, 100].
func Percent(src Source) int {
	return src.Intn(100) + 1
}

// Roller wraps a Source and logger so every roll is logged at debug level.
type Roller struct {
	src    Source
	logger *zap.Logger
}

// NewLoggedRoller creates a Roller that rolls with src and logs each roll to logger.
//
// Precondition: src and logger must be non-nil.
func NewLoggedRoller(src Source, logger *zap.Logger) *Roller {
	return &Roller{src: src, logger: logger}
}

// Intn returns a random int in [0, n), logging the result.
// Roller itself satisfies Source so it can be passed anywhere a Source is needed.
func (r *Roller) Intn(n int) int {
	v := r.src.Intn(n)
	r.logger.Debug("dice roll",
		zap.Int("bound", n),
		zap.Int("value", v),
	)
	return v
}

// Percent rolls a percentile value in [1, 100], logging the result.
//
// Postcondition: Returns a value in [1, 100].
func (r *Roller) Percent() int {
	v := Percent(r.src)
	r.logger.Debug("percentile roll",
		zap.Int("value", v),
	)
	return v
}
