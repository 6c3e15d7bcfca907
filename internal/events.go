package internal

import (
	"time"

	"github.com/cskr/pubsub/v2"
)

const (
	EventConnected        = "connected"
	EventConnectionLost   = "connection_lost"
	EventMovementDetected = "movement_detected"
	EventStabilised       = "stabilised"
	EventStopSent         = "stop_sent"
	EventStopFailed       = "stop_failed"

	TopicAllCameras = "cameras"
	topicCameraPref = "camera/"

	defaultEventBufferSize = 32
)

type MonitorEvent struct {
	Camera    string    `json:"camera"`
	Type      string    `json:"type"`
	Message   string    `json:"message,omitempty"`
	Pan       float64   `json:"pan"`
	Tilt      float64   `json:"tilt"`
	Zoom      float64   `json:"zoom"`
	Timestamp time.Time `json:"timestamp"`
}

// EventBus fans monitor events out to subscribers. Publishing never blocks: slow subscribers lose events.
type EventBus struct {
	ps *pubsub.PubSub[string, MonitorEvent]
}

func NewEventBus(capacity int) *EventBus {
	if capacity <= 0 {
		capacity = defaultEventBufferSize
	}
	return &EventBus{ps: pubsub.New[string, MonitorEvent](capacity)}
}

func CameraTopic(camera string) string {
	return topicCameraPref + camera
}

// Publish sends ev to the all-cameras topic and to the camera's own topic. Safe on a nil bus.
func (b *EventBus) Publish(ev MonitorEvent) {
	if b == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	b.ps.TryPub(ev, TopicAllCameras, CameraTopic(ev.Camera))
}

// Subscribe returns a channel of events for one camera, or for every camera when camera is empty.
func (b *EventBus) Subscribe(camera string) chan MonitorEvent {
	if camera == "" {
		return b.ps.Sub(TopicAllCameras)
	}
	return b.ps.Sub(CameraTopic(camera))
}

// Unsubscribe detaches ch and drains it until the bus closes it.
func (b *EventBus) Unsubscribe(ch chan MonitorEvent) {
	go func() {
		for range ch {
		}
	}()
	b.ps.Unsub(ch)
}

func (b *EventBus) Shutdown() {
	b.ps.Shutdown()
}
