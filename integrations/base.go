package integrations

import (
	"runtime/debug"

	"github.com/cognitedata/ptz-stabilizer/internal"
	log "github.com/sirupsen/logrus"
)

// BaseIntegration is a base class for all integrations. Integrations are long running processes that internally run one or more processors (goroutines).
// Processors only report to the integration: StateTracker records their states, Events and Metrics carry what they observe.
type BaseIntegration struct {
	ID           string
	IsRunning    bool
	Logger       *log.Logger
	StateTracker *internal.StateTracker
	Events       *internal.EventBus
	Metrics      *internal.Metrics
}

func NewIntegration(id string, logger *log.Logger) *BaseIntegration {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &BaseIntegration{
		ID:           id,
		Logger:       logger,
		StateTracker: internal.NewStateTracker(),
		Events:       internal.NewEventBus(0),
		Metrics:      internal.NewMetrics(),
	}
}

func (intgr *BaseIntegration) Stop() {
	intgr.IsRunning = false
}

// SystemLog returns the entry used for messages that don't belong to a single camera.
func (intgr *BaseIntegration) SystemLog() *log.Entry {
	return intgr.Logger.WithField(internal.SourceField, internal.SystemSource)
}

// ReportMonitorState records the processor state. Reporting failures never reach the processor.
func (intgr *BaseIntegration) ReportMonitorState(camera, state string) {
	defer func() {
		if r := recover(); r != nil {
			stack := string(debug.Stack())
			intgr.SystemLog().Error("Failed to report monitor state due to the error : ", stack)
		}
	}()
	intgr.StateTracker.SetMonitorState(camera, state)
}

func (intgr *BaseIntegration) ReportMonitorError(camera string, err error) {
	intgr.StateTracker.SetMonitorError(camera, err)
}

func (intgr *BaseIntegration) PublishEvent(ev internal.MonitorEvent) {
	intgr.Events.Publish(ev)
}
