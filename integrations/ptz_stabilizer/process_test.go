package ptz_stabilizer

import (
	"errors"
	"testing"
	"time"

	"github.com/cognitedata/ptz-stabilizer/internal"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func fastConfig(name string) internal.CameraConfig {
	config := testCameraConfig(name)
	config.ReconnectTime = time.Millisecond
	config.PollingInterval = time.Millisecond
	return config
}

func newTestStabilizer(clients map[string]*fakeClient, cameras ...internal.CameraConfig) (*PtzStabilizer, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	intgr := NewPtzStabilizer(logger)
	intgr.SetConfig(&internal.StaticConfig{Cameras: cameras})
	intgr.SetClientConstructor(func(config internal.CameraConfig, logger *log.Entry) (DeviceClient, error) {
		client, ok := clients[config.Name]
		if !ok {
			return nil, errors.New("unsupported camera model")
		}
		return client, nil
	})
	return intgr, hook
}

func TestStartWithoutCameras(t *testing.T) {
	intgr, hook := newTestStabilizer(nil)
	if err := intgr.Start(); !errors.Is(err, ErrNoCameras) {
		t.Fatalf("expected ErrNoCameras, got %v", err)
	}
	if countEntries(hook, internal.LevelCritical, "no cameras configured") != 1 {
		t.Error("missing configuration must be logged at CRITICAL")
	}
	if intgr.IsRunning {
		t.Error("integration must not be running")
	}
}

func TestMonitorsAreIsolated(t *testing.T) {
	broken := &fakeClient{connectDefault: errors.New("connection refused")}
	good := &fakeClient{statuses: []statusResult{ok(idleAt(0, 0, 0)), ok(idleAt(0.2, 0, 0)), ok(idleAt(0.2, 0, 0))}}
	intgr, hook := newTestStabilizer(map[string]*fakeClient{"broken": broken, "good": good}, fastConfig("broken"), fastConfig("good"))

	if err := intgr.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	waitFor(t, "stop on the good camera", func() bool { return good.Stops() == 1 })
	waitFor(t, "retries on the broken camera", func() bool { return broken.Connects() > 5 })

	if !intgr.StateTracker.WaitForMonitorState("good", internal.MonitorStateStable, time.Second) {
		t.Error("good camera should be STABLE")
	}
	st := intgr.StateTracker.GetMonitorState("broken")
	if st.CurrentState != internal.MonitorStateConnecting || st.LastError == "" {
		t.Errorf("broken camera should keep connecting with an error recorded, got %+v", st)
	}
	if countEntries(hook, log.InfoLevel, "Started ONVIF PTZ Stabiliser") != 1 {
		t.Error("startup banner missing")
	}

	intgr.Stop()
	for _, name := range []string{"broken", "good"} {
		if !intgr.StateTracker.WaitForMonitorState(name, internal.MonitorStateStopped, 2*time.Second) {
			t.Errorf("monitor %s did not stop", name)
		}
	}
	if good.Stops() != 1 {
		t.Errorf("good camera must be stopped exactly once, got %d", good.Stops())
	}
}

func TestCrashedMonitorIsRestarted(t *testing.T) {
	crashing := &fakeClient{panicOnStatus: 2, statuses: []statusResult{ok(idleAt(0, 0, 0))}}
	other := &fakeClient{statuses: []statusResult{ok(idleAt(0, 0, 0))}}
	intgr, hook := newTestStabilizer(map[string]*fakeClient{"crashing": crashing, "other": other}, fastConfig("crashing"), fastConfig("other"))

	if err := intgr.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer intgr.Stop()

	waitFor(t, "monitor restart", func() bool { return crashing.Connects() >= 2 })
	if countEntries(hook, internal.LevelCritical, "crashed") < 1 {
		t.Error("crash must be logged at CRITICAL")
	}
	if !intgr.StateTracker.WaitForMonitorState("other", internal.MonitorStateStable, time.Second) {
		t.Error("a crash in one monitor must not affect the other")
	}
}

func TestClientConstructorFailure(t *testing.T) {
	intgr, hook := newTestStabilizer(map[string]*fakeClient{}, fastConfig("unknown"))
	if err := intgr.Start(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer intgr.Stop()

	if !intgr.StateTracker.WaitForMonitorState("unknown", internal.MonitorStateStopped, 2*time.Second) {
		t.Fatal("monitor without a client must be STOPPED")
	}
	if st := intgr.StateTracker.GetMonitorState("unknown"); st.LastError == "" {
		t.Error("constructor error must be recorded")
	}
	waitFor(t, "error log", func() bool { return countEntries(hook, log.ErrorLevel, "can't be started") == 1 })
}

func TestNewPtzCameraClientRejectsUnknownModel(t *testing.T) {
	config := testCameraConfig("cam")
	config.Model = "vapix"
	if _, err := NewPtzCameraClient(config, nil); err == nil {
		t.Error("expected an error for an unknown model")
	}
	config.Model = ""
	if _, err := NewPtzCameraClient(config, nil); err != nil {
		t.Errorf("default model should be accepted: %v", err)
	}
}
