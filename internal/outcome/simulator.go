package outcome

import (
	"math/rand/v2"
)

// Simulator stands in for an acquiring bank: each draw approves with probability p.
type Simulator struct {
	p    float64
	draw func() float64
}

// NewSimulator returns a simulator backed by the global uniform source.
func NewSimulator(p float64) *Simulator {
	return &Simulator{p: p, draw: rand.Float64}
}

// NewSimulatorWithSource lets tests replace the random draw.
func NewSimulatorWithSource(p float64, draw func() float64) *Simulator {
	return &Simulator{p: p, draw: draw}
}

// Approve draws once from [0, 1) and approves when the draw falls below p.
func (s *Simulator) Approve() bool {
	return s.draw() < s.p
}

// Fixed always returns the same outcome.
type Fixed bool

func (f Fixed) Approve() bool {
	return bool(f)
}

// Sequence replays a scripted list of outcomes and then repeats the last one.
type Sequence struct {
	outcomes []bool
	next     int
}

func NewSequence(outcomes ...bool) *Sequence {
	return &Sequence{outcomes: outcomes}
}

func (s *Sequence) Approve() bool {
	if len(s.outcomes) == 0 {
		return false
	}
	i := s.next
	if i >= len(s.outcomes) {
		i = len(s.outcomes) - 1
	} else {
		s.next++
	}
	return s.outcomes[i]
}
