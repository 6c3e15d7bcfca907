package ptz_stabilizer

import (
	"context"
	"fmt"
	"time"

	"github.com/cognitedata/ptz-stabilizer/drivers/camera"
	"github.com/cognitedata/ptz-stabilizer/integrations"
	"github.com/cognitedata/ptz-stabilizer/internal"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrMonitorAbandoned ends a monitor whose device has no media profile when the abandon policy is set.
var ErrMonitorAbandoned = errors.New("camera monitor abandoned")

// DeviceClient is the device side of a monitor. Calls may block; timeouts are the client's business.
type DeviceClient interface {
	Connect() error
	GetProfileToken() (string, error)
	GetStatus(profileToken string) (*camera.PositionSample, error)
	Stop(profileToken string) error
}

// CameraMonitor owns one device connection and runs its poll/detect/stop loop.
// Everything but the reporting sinks of the integration is private to the monitor goroutine.
type CameraMonitor struct {
	config   internal.CameraConfig
	client   DeviceClient
	intgr    *integrations.BaseIntegration
	log      *log.Entry
	detector *MoveDetector

	// connection handle, valid between a successful connect and the next failure
	connected bool
	token     string

	sleep func(ctx context.Context, d time.Duration) bool
}

func NewCameraMonitor(config internal.CameraConfig, client DeviceClient, intgr *integrations.BaseIntegration) *CameraMonitor {
	return &CameraMonitor{
		config:   config,
		client:   client,
		intgr:    intgr,
		log:      intgr.Logger.WithField(internal.SourceField, config.Name),
		detector: NewMoveDetector(config.PositionTolerance, config.RequireIdleStatus),
		sleep:    sleepContext,
	}
}

// Run connects and polls until ctx is cancelled. Connection failures are retried forever; the only other
// way out is ErrMonitorAbandoned.
func (m *CameraMonitor) Run(ctx context.Context) error {
	if err := m.connect(ctx); err != nil {
		return err
	}
	m.log.Info("Monitoring PTZ position...")
	for {
		delay, err := m.poll()
		if err != nil {
			internal.Criticalf(m.log, "Polling failed: %v", err)
			m.disconnect(err)
			m.log.Info("Reconnecting to camera...")
			if err := m.connect(ctx); err != nil {
				return err
			}
			m.log.Info("Reconnected to camera, resuming polling...")
			continue
		}
		if delay > 0 {
			if !m.sleep(ctx, delay) {
				return ctx.Err()
			}
		} else if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// connect opens a session, resolves the profile token and seeds the detector with a baseline sample.
func (m *CameraMonitor) connect(ctx context.Context) error {
	target := fmt.Sprintf("%s:%d", m.config.Address, m.config.Port)
	for {
		m.intgr.ReportMonitorState(m.config.Name, internal.MonitorStateConnecting)
		m.log.Infof("Connecting to '%s': %s...", m.config.Name, target)
		err := m.tryConnect()
		if err == nil {
			m.log.Infof("Connected to '%s': %s", m.config.Name, target)
			m.intgr.ReportMonitorState(m.config.Name, m.currentState())
			m.publish(internal.EventConnected, "", m.detector.Previous())
			return nil
		}
		internal.Criticalf(m.log, "Connection failed: %v", err)
		m.intgr.ReportMonitorError(m.config.Name, err)
		m.intgr.Metrics.ConnectionFailed(m.config.Name)
		if errors.Is(err, camera.ErrNoProfiles) && m.config.ProfileMissingPolicy == internal.ProfileMissingAbandon {
			internal.Critical(m.log, "No media profiles found, giving up on this camera")
			m.intgr.ReportMonitorState(m.config.Name, internal.MonitorStateStopped)
			return ErrMonitorAbandoned
		}
		m.log.Infof("Reattempting in %s...", m.config.ReconnectTime)
		if !m.sleep(ctx, m.config.ReconnectTime) {
			return ctx.Err()
		}
	}
}

func (m *CameraMonitor) tryConnect() error {
	if err := m.client.Connect(); err != nil {
		return err
	}
	token, err := m.client.GetProfileToken()
	if err != nil {
		return err
	}
	sample, err := m.client.GetStatus(token)
	if err != nil {
		return err
	}
	m.token = token
	m.connected = true
	m.detector.Reset(*sample)
	return nil
}

func (m *CameraMonitor) disconnect(cause error) {
	m.connected = false
	m.token = ""
	m.intgr.ReportMonitorError(m.config.Name, cause)
	m.intgr.ReportMonitorState(m.config.Name, internal.MonitorStateReconnecting)
	m.intgr.Metrics.ConnectionFailed(m.config.Name)
	m.publish(internal.EventConnectionLost, cause.Error(), nil)
}

// poll runs one detection step and returns how long to wait before the next one.
func (m *CameraMonitor) poll() (time.Duration, error) {
	if !m.connected {
		return 0, &camera.ConnectionError{Op: "GetStatus", Err: camera.ErrNotConnected}
	}
	sample, err := m.client.GetStatus(m.token)
	if err != nil {
		return 0, err
	}
	m.intgr.Metrics.Poll(m.config.Name)
	obs := m.detector.Observe(*sample)

	m.log.Debugf("PTZ position: %s", sample)
	m.log.Debugf("PTZ position changing: %t", obs.CurrentlyMoving)
	m.log.Debugf("PTZ status: PanTilt: %s, Zoom: %s", sample.PanTiltStatus, sample.ZoomStatus)

	switch obs.Transition {
	case StartedMoving:
		m.log.Info("Movement detected, waiting for PTZ position to stabilise...")
		m.intgr.ReportMonitorState(m.config.Name, internal.MonitorStateMoving)
		m.intgr.Metrics.MovementDetected(m.config.Name)
		m.publish(internal.EventMovementDetected, "", sample)
	case Stabilised:
		m.log.Info("PTZ position stabilised, triggering stop...")
		m.intgr.Metrics.Stabilised(m.config.Name)
		m.publish(internal.EventStabilised, "", sample)
		m.sendStop(sample)
		m.intgr.ReportMonitorState(m.config.Name, internal.MonitorStateStable)
		m.log.Info("Monitoring PTZ position...")
	}
	return m.nextDelay(), nil
}

// sendStop issues the corrective stop. A failed stop is logged and otherwise ignored.
func (m *CameraMonitor) sendStop(sample *camera.PositionSample) {
	m.log.Info("Sending stop command")
	if err := m.client.Stop(m.token); err != nil {
		m.log.Errorf("Stop command failed: %v", err)
		m.intgr.Metrics.StopFailed(m.config.Name)
		m.publish(internal.EventStopFailed, err.Error(), sample)
		return
	}
	m.log.Info("Stop command sent")
	m.intgr.Metrics.StopSent(m.config.Name)
	m.publish(internal.EventStopSent, "", sample)
}

func (m *CameraMonitor) nextDelay() time.Duration {
	if m.detector.IsMoving() && m.config.FastPollOnMove {
		return 0
	}
	return m.config.PollingInterval
}

func (m *CameraMonitor) currentState() string {
	if m.detector.IsMoving() {
		return internal.MonitorStateMoving
	}
	return internal.MonitorStateStable
}

func (m *CameraMonitor) publish(eventType, message string, sample *camera.PositionSample) {
	ev := internal.MonitorEvent{Camera: m.config.Name, Type: eventType, Message: message}
	if sample != nil {
		ev.Pan, ev.Tilt, ev.Zoom = sample.Pan, sample.Tilt, sample.Zoom
	}
	m.intgr.PublishEvent(ev)
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
