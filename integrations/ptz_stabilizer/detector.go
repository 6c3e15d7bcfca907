package ptz_stabilizer

import (
	"math"

	"github.com/cognitedata/ptz-stabilizer/drivers/camera"
)

type Transition int

const (
	NoTransition Transition = iota
	StartedMoving
	Stabilised
)

func (t Transition) String() string {
	switch t {
	case StartedMoving:
		return "STABLE->MOVING"
	case Stabilised:
		return "MOVING->STABLE"
	}
	return "none"
}

// Observation is the outcome of feeding one sample to the detector.
type Observation struct {
	PositionChanged bool
	ReportedMoving  bool
	CurrentlyMoving bool
	Transition      Transition
}

// MoveDetector is the STABLE/MOVING state machine of one camera. It always compares a sample with the
// immediately preceding one. Not safe for concurrent use: it belongs to a single monitor loop.
type MoveDetector struct {
	// tolerance 0 means exact float equality
	tolerance         float64
	requireIdleStatus bool
	previous          *camera.PositionSample
	isMoving          bool
}

func NewMoveDetector(tolerance float64, requireIdleStatus bool) *MoveDetector {
	return &MoveDetector{tolerance: tolerance, requireIdleStatus: requireIdleStatus}
}

// Reset replaces the previous sample with a fresh baseline. The moving flag survives reconnects so a
// device that was moving when the connection dropped still gets its stop.
func (d *MoveDetector) Reset(baseline camera.PositionSample) {
	d.previous = &baseline
}

func (d *MoveDetector) IsMoving() bool {
	return d.isMoving
}

func (d *MoveDetector) Previous() *camera.PositionSample {
	return d.previous
}

// Observe classifies sample against the previous one and advances the state machine.
func (d *MoveDetector) Observe(sample camera.PositionSample) Observation {
	obs := Observation{
		PositionChanged: d.positionChanged(sample),
		ReportedMoving:  sample.PanTiltStatus == camera.MoveStatusMoving || sample.ZoomStatus == camera.MoveStatusMoving,
	}
	obs.CurrentlyMoving = obs.PositionChanged || obs.ReportedMoving
	if d.requireIdleStatus && d.isMoving && !obs.CurrentlyMoving {
		// a moving camera settles only once the device reports both axis groups idle
		obs.CurrentlyMoving = sample.PanTiltStatus != camera.MoveStatusIdle || sample.ZoomStatus != camera.MoveStatusIdle
	}

	switch {
	case obs.CurrentlyMoving && !d.isMoving:
		d.isMoving = true
		obs.Transition = StartedMoving
	case !obs.CurrentlyMoving && d.isMoving:
		d.isMoving = false
		obs.Transition = Stabilised
	}
	d.previous = &sample
	return obs
}

func (d *MoveDetector) positionChanged(sample camera.PositionSample) bool {
	if d.previous == nil {
		return false
	}
	return d.differs(d.previous.Pan, sample.Pan) ||
		d.differs(d.previous.Tilt, sample.Tilt) ||
		d.differs(d.previous.Zoom, sample.Zoom)
}

func (d *MoveDetector) differs(a, b float64) bool {
	if d.tolerance == 0 {
		return a != b
	}
	return !(math.Abs(a-b) <= d.tolerance)
}
