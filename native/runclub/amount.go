package runclub

import "math/big"

var (
	maxInt128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	minInt128 = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
)

// fitsInt128 reports whether v is representable as a signed 128-bit integer.
func fitsInt128(v *big.Int) bool {
	if v == nil {
		return true
	}
	return v.Cmp(maxInt128) <= 0 && v.Cmp(minInt128) >= 0
}

func newBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
