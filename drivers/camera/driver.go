package camera

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// MoveStatus is the device reported motion state of one axis group.
type MoveStatus string

const (
	MoveStatusMoving  MoveStatus = "MOVING"
	MoveStatusIdle    MoveStatus = "IDLE"
	MoveStatusUnknown MoveStatus = "UNKNOWN"
)

// ParseMoveStatus maps a raw protocol value onto MoveStatus. Anything that is
// neither MOVING nor IDLE is UNKNOWN.
func ParseMoveStatus(raw string) MoveStatus {
	switch MoveStatus(strings.ToUpper(strings.TrimSpace(raw))) {
	case MoveStatusMoving:
		return MoveStatusMoving
	case MoveStatusIdle:
		return MoveStatusIdle
	}
	return MoveStatusUnknown
}

// PositionSample is a single PTZ status reading.
type PositionSample struct {
	Pan           float64
	Tilt          float64
	Zoom          float64
	PanTiltStatus MoveStatus
	ZoomStatus    MoveStatus
}

func (s PositionSample) String() string {
	return fmt.Sprintf("P:%.4f T:%.4f Z:%.4f", s.Pan, s.Tilt, s.Zoom)
}

// ConnectionParams holds everything a driver needs to open a session with a device.
type ConnectionParams struct {
	Address        string
	Port           int
	Username       string
	Password       string
	IgnoreSSL      bool
	DigestAuth     bool
	RequestTimeout time.Duration
	// Logger receives protocol traces; nil disables them.
	Logger *log.Entry
}

type DriverConstructor func() Driver

// Driver is a PTZ capable device client. All calls are synchronous and may block on network I/O.
type Driver interface {
	Configure(params ConnectionParams) error
	// Connect opens a new session, dropping any previous one.
	Connect() error
	// GetProfileToken returns the token of the first media profile.
	GetProfileToken() (string, error)
	GetStatus(profileToken string) (*PositionSample, error)
	// Stop requests a halt of both pan/tilt and zoom axes.
	Stop(profileToken string) error
}

var (
	ErrNotConnected = errors.New("device is not connected")
	ErrNoProfiles   = errors.New("no media profiles found, cannot get PTZ token")
)

// ConnectionError reports any failure to reach, authenticate with or query a device.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *ConnectionError) Cause() error  { return e.Err }
func (e *ConnectionError) Unwrap() error { return e.Err }

// CommandError reports a failed Stop invocation.
type CommandError struct {
	Op  string
	Err error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s command failed: %v", e.Op, e.Err)
}

func (e *CommandError) Cause() error  { return e.Err }
func (e *CommandError) Unwrap() error { return e.Err }

func newConnectionError(op string, err error) error {
	return &ConnectionError{Op: op, Err: err}
}
