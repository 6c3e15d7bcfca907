package ptz_stabilizer

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/cognitedata/ptz-stabilizer/connectors/inputs"
	"github.com/cognitedata/ptz-stabilizer/drivers/camera"
	"github.com/cognitedata/ptz-stabilizer/integrations"
	"github.com/cognitedata/ptz-stabilizer/internal"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const IntegrationID = "ptz_stabilizer"

var ErrNoCameras = errors.New("no cameras configured, check configuration")

// ClientConstructor opens the device client used by one monitor.
type ClientConstructor func(config internal.CameraConfig, logger *log.Entry) (DeviceClient, error)

// PtzStabilizer supervises one CameraMonitor per configured camera. Monitors share nothing and a
// crash in one of them is recovered without touching the others.
type PtzStabilizer struct {
	integrations.BaseIntegration
	cameraConfigs []internal.CameraConfig
	newClient     ClientConstructor
	ctx           context.Context
	cancel        context.CancelFunc
}

func NewPtzStabilizer(logger *log.Logger) *PtzStabilizer {
	return &PtzStabilizer{
		BaseIntegration: *integrations.NewIntegration(IntegrationID, logger),
		newClient:       NewPtzCameraClient,
	}
}

// NewPtzCameraClient builds the driver selected by the camera model.
func NewPtzCameraClient(config internal.CameraConfig, logger *log.Entry) (DeviceClient, error) {
	cam, err := inputs.NewPtzCamera(config.Model, camera.ConnectionParams{
		Address:        config.Address,
		Port:           config.Port,
		Username:       config.Username,
		Password:       config.Password,
		IgnoreSSL:      config.IgnoreSSL,
		DigestAuth:     config.DigestAuth,
		RequestTimeout: config.RequestTimeout,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}
	return cam, nil
}

func (intgr *PtzStabilizer) SetConfig(config *internal.StaticConfig) {
	intgr.cameraConfigs = config.Cameras
}

func (intgr *PtzStabilizer) SetClientConstructor(constructor ClientConstructor) {
	intgr.newClient = constructor
}

// Start launches every monitor and returns immediately.
func (intgr *PtzStabilizer) Start() error {
	sysLog := intgr.SystemLog()
	if len(intgr.cameraConfigs) == 0 {
		internal.Critical(sysLog, ErrNoCameras.Error())
		return ErrNoCameras
	}
	intgr.ctx, intgr.cancel = context.WithCancel(context.Background())
	intgr.IsRunning = true
	sysLog.Info("Started ONVIF PTZ Stabiliser")
	sysLog.Infof("Cameras configured: %d", len(intgr.cameraConfigs))
	for _, cam := range intgr.cameraConfigs {
		go intgr.startSingleCameraMonitorLoop(cam)
	}
	return nil
}

// Stop abandons the monitors in place. Nothing is drained.
func (intgr *PtzStabilizer) Stop() {
	intgr.BaseIntegration.Stop()
	if intgr.cancel != nil {
		intgr.cancel()
	}
}

// startSingleCameraMonitorLoop runs one monitor, restarting it after a crash. The operation is blocking and must be started in its own goroutine.
func (intgr *PtzStabilizer) startSingleCameraMonitorLoop(cam internal.CameraConfig) {
	camLog := intgr.Logger.WithField(internal.SourceField, cam.Name)
	camLog.Infof("Starting camera monitor, model = %s, address = %s:%d, username = %s", modelName(cam.Model), cam.Address, cam.Port, cam.Username)

	client, err := intgr.newClient(cam, camLog)
	if err != nil {
		camLog.Errorf("Monitor can't be started: %v", err)
		intgr.ReportMonitorError(cam.Name, err)
		intgr.ReportMonitorState(cam.Name, internal.MonitorStateStopped)
		return
	}

	for {
		err := intgr.runMonitor(cam, client)
		if intgr.ctx.Err() != nil || errors.Is(err, ErrMonitorAbandoned) {
			break
		}
		camLog.Infof("Restarting camera monitor in %s", cam.ReconnectTime)
		if !sleepContext(intgr.ctx, cam.ReconnectTime) {
			break
		}
	}
	camLog.Info("Camera monitor exited main loop")
	intgr.ReportMonitorState(cam.Name, internal.MonitorStateStopped)
}

// runMonitor executes one monitor lifetime and converts a panic into an error.
func (intgr *PtzStabilizer) runMonitor(cam internal.CameraConfig, client DeviceClient) (err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := string(debug.Stack())
			camLog := intgr.Logger.WithField(internal.SourceField, cam.Name)
			internal.Criticalf(camLog, "Camera monitor crashed with error : %v\n%s", r, stack)
			err = fmt.Errorf("camera monitor crashed: %v", r)
			intgr.ReportMonitorError(cam.Name, err)
		}
	}()
	return NewCameraMonitor(cam, client, &intgr.BaseIntegration).Run(intgr.ctx)
}

func modelName(model string) string {
	if model == "" {
		return inputs.DefaultModel
	}
	return model
}
