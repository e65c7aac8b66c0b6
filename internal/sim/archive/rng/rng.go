// Package rng is a splitmix64 generator built fresh from a caller seed.
// It never touches process-wide randomness, so draws replay exactly.
package rng

type Source struct {
	state uint64
}

func New(seed int64) *Source {
	return &Source{state: uint64(seed)}
}

func mix64(z uint64) uint64 {
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func (s *Source) Uint64() uint64 {
	s.state += 0x9e3779b97f4a7c15
	return mix64(s.state)
}

// Intn returns a value in [0, n). n <= 0 yields 0.
func (s *Source) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return int(s.Uint64() % uint64(n))
}

// Permille reports whether a draw lands under p out of 1000.
func (s *Source) Permille(p int) bool {
	if p <= 0 {
		s.Uint64()
		return false
	}
	if p >= 1000 {
		s.Uint64()
		return true
	}
	return s.Intn(1000) < p
}

// Derive folds parts into a base seed. The engine uses it to assign one
// seed per (tick, action index) so dig outcomes replay from the tick log.
func Derive(base int64, parts ...uint64) int64 {
	z := uint64(base)
	for _, p := range parts {
		z = mix64(z ^ (p + 0x9e3779b97f4a7c15))
	}
	return int64(z)
}
