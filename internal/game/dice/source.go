package dice

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// cryptoSource draws from crypto/rand so production rolls cannot be predicted
// or replayed by a client timing its turn submissions.
type cryptoSource struct{}

// NewCryptoSource returns the production roll source.
func NewCryptoSource() Source {
	return cryptoSource{}
}

// Intn returns a uniform random int in [0, n).
//
// Precondition: n > 0; violating it panics, as does a crypto/rand read
// failure. Neither has a sane in-band recovery for a combat roll.
func (cryptoSource) Intn(n int) int {
	if n <= 0 {
		panic(fmt.Sprintf("dice: Intn bound must be positive, got %d", n))
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic(fmt.Sprintf("dice: crypto/rand read failed: %v", err))
	}
	return int(v.Int64())
}
