package coin

import "fmt"

// Triple is the three-integer coordinate identifying a coin's position in the
// combinatorial space. Positions are significant: (1,2,3) != (3,2,1).
type Triple struct {
	X int
	Y int
	Z int
}

func (t Triple) String() string {
	return fmt.Sprintf("(%d,%d,%d)", t.X, t.Y, t.Z)
}

// Space is the bounded triple domain [1,Bound]^3. Bound is fixed at
// construction; the space size is the hard ceiling on how many coins can exist.
type Space struct {
	Bound int
}

// DefaultBound gives a space of 1,000 combinations.
const DefaultBound = 10

func NewSpace(bound int) (Space, error) {
	if bound < 1 {
		return Space{}, fmt.Errorf("space bound must be >= 1, got %d", bound)
	}
	return Space{Bound: bound}, nil
}

// Size returns the total number of combinations, Bound^3.
func (s Space) Size() int {
	return s.Bound * s.Bound * s.Bound
}

// At returns the i-th triple in lexicographic ascending order over (X, Y, Z),
// with i in [0, Size()). At(0) is (1,1,1).
func (s Space) At(i int) Triple {
	b := s.Bound
	return Triple{
		X: i/(b*b) + 1,
		Y: (i/b)%b + 1,
		Z: i%b + 1,
	}
}

// Contains reports whether every axis of t lies in [1, Bound].
func (s Space) Contains(t Triple) bool {
	in := func(v int) bool { return v >= 1 && v <= s.Bound }
	return in(t.X) && in(t.Y) && in(t.Z)
}
