package domain

import "fmt"

// Phase is the current part of the three-part exam.
type Phase int

const (
	Part1 Phase = iota + 1
	Part2
	Part3
)

// String implements fmt.Stringer.
func (p Phase) String() string {
	switch p {
	case Part1:
		return "part1"
	case Part2:
		return "part2"
	case Part3:
		return "part3"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Valid reports whether p is one of the three exam parts.
func (p Phase) Valid() bool {
	return p >= Part1 && p <= Part3
}

// Next returns the following phase and false when p is already the last one.
func (p Phase) Next() (Phase, bool) {
	if p >= Part3 {
		return p, false
	}
	return p + 1, true
}
