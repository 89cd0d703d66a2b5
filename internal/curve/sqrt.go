package curve

import "github.com/holiman/uint256"

// Sqrt returns floor(sqrt(x)) using Newton's method on integers.
// The iteration starts above the root and decreases monotonically, so the
// first non-decreasing step is the floor of the true root.
func Sqrt(x *uint256.Int) *uint256.Int {
	if x.IsZero() {
		return new(uint256.Int)
	}
	if x.LtUint64(4) {
		return uint256.NewInt(1)
	}

	z := x.Clone()
	// y = x/2 + 1 cannot overflow: x/2 < 2^255.
	y := new(uint256.Int).Rsh(x, 1)
	y.AddUint64(y, 1)

	var q uint256.Int
	for y.Lt(z) {
		z.Set(y)
		q.Div(x, y)
		y.Add(&q, y)
		y.Rsh(y, 1)
	}
	return z
}
