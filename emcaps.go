// Package emcaps is the entry point for training a matrix capsule network with EM routing.
// The network itself lives in capsnet; this package holds what a training loop needs around it:
// the annealing schedule, loss statistics and the batch data types.
package emcaps

// Schedule anneals the inverse temperature of the routing layers and the margin of the spread loss.
// Both start low and grow by a fixed amount per step until they reach their caps.
type Schedule struct {
	Lambda float32 // inverse temperature handed to Forward
	Margin float32 // margin handed to MarginLoss

	Steps int // steps per epoch
}

const (
	scheduleRamp = 0.2 // total growth per epoch
	lambdaCap    = 1
	marginCap    = 0.9
)

// DefaultSchedule starts a fresh run: routing is soft and the margin small.
func DefaultSchedule(steps int) Schedule {
	return Schedule{Lambda: 1e-3, Margin: 0.2, Steps: steps}
}

// ResumedSchedule continues from a trained network.
func ResumedSchedule(steps int) Schedule {
	return Schedule{Lambda: 0.9, Margin: 0.8, Steps: steps}
}

// Step advances the schedule by one batch. A schedule with no steps never moves.
func (s *Schedule) Step() {
	if s.Steps <= 0 {
		return
	}
	inc := float32(scheduleRamp) / float32(s.Steps)
	if s.Lambda < lambdaCap {
		s.Lambda += inc
	}
	if s.Margin < marginCap {
		s.Margin += inc
	}
}
