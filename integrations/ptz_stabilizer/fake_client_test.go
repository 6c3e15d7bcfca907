package ptz_stabilizer

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cognitedata/ptz-stabilizer/drivers/camera"
	"github.com/cognitedata/ptz-stabilizer/integrations"
	"github.com/cognitedata/ptz-stabilizer/internal"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

type statusResult struct {
	sample *camera.PositionSample
	err    error
}

func ok(s camera.PositionSample) statusResult {
	return statusResult{sample: &s}
}

func fail(op string) statusResult {
	return statusResult{err: &camera.ConnectionError{Op: op, Err: camera.ErrNotConnected}}
}

// fakeClient replays scripted results. Queues are consumed call by call; once a queue is empty the
// default applies (success for connect/token, the last sample for status).
type fakeClient struct {
	mu             sync.Mutex
	connectResults []error
	connectDefault error
	tokenResults   []error
	statuses       []statusResult
	last           *camera.PositionSample
	onExhausted    func()
	panicOnStatus  int
	stopErr        error

	connects    int
	statusCalls int
	stopTokens  []string
}

func (c *fakeClient) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++
	if len(c.connectResults) > 0 {
		err := c.connectResults[0]
		c.connectResults = c.connectResults[1:]
		return err
	}
	return c.connectDefault
}

func (c *fakeClient) GetProfileToken() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.tokenResults) > 0 {
		err := c.tokenResults[0]
		c.tokenResults = c.tokenResults[1:]
		if err != nil {
			return "", err
		}
	}
	return "Profile_1", nil
}

func (c *fakeClient) GetStatus(profileToken string) (*camera.PositionSample, error) {
	c.mu.Lock()
	c.statusCalls++
	if c.panicOnStatus > 0 && c.statusCalls == c.panicOnStatus {
		c.mu.Unlock()
		panic("malformed status")
	}
	if len(c.statuses) == 0 {
		onExhausted := c.onExhausted
		last := c.last
		c.mu.Unlock()
		if onExhausted != nil {
			onExhausted()
		}
		if last == nil {
			return nil, &camera.ConnectionError{Op: "GetStatus", Err: camera.ErrNotConnected}
		}
		s := *last
		return &s, nil
	}
	res := c.statuses[0]
	c.statuses = c.statuses[1:]
	if res.sample != nil {
		c.last = res.sample
	}
	c.mu.Unlock()
	if res.err != nil {
		return nil, res.err
	}
	s := *res.sample
	return &s, nil
}

func (c *fakeClient) Stop(profileToken string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTokens = append(c.stopTokens, profileToken)
	return c.stopErr
}

func (c *fakeClient) Connects() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects
}

func (c *fakeClient) Stops() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.stopTokens)
}

func testCameraConfig(name string) internal.CameraConfig {
	return internal.CameraConfig{
		Name:                 name,
		Address:              "10.0.0.26",
		Port:                 80,
		ReconnectTime:        5 * time.Second,
		PollingInterval:      300 * time.Millisecond,
		FastPollOnMove:       true,
		ProfileMissingPolicy: internal.ProfileMissingRetry,
	}
}

type sleepRecorder struct {
	durations []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) bool {
	r.durations = append(r.durations, d)
	return ctx.Err() == nil
}

func (r *sleepRecorder) count(d time.Duration) int {
	n := 0
	for _, v := range r.durations {
		if v == d {
			n++
		}
	}
	return n
}

func newTestMonitor(config internal.CameraConfig, client DeviceClient) (*CameraMonitor, *test.Hook, *sleepRecorder) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(log.DebugLevel)
	intgr := integrations.NewIntegration("test", logger)
	m := NewCameraMonitor(config, client, intgr)
	rec := &sleepRecorder{}
	m.sleep = rec.sleep
	return m, hook, rec
}

func countEntries(hook *test.Hook, level log.Level, fragment string) int {
	n := 0
	for _, e := range hook.AllEntries() {
		if e.Level == level && strings.Contains(e.Message, fragment) {
			n++
		}
	}
	return n
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
