package internal

import (
	"sort"
	"sync"
	"time"
)

const (
	MonitorStateConnecting   = "CONNECTING"
	MonitorStateStable       = "STABLE"
	MonitorStateMoving       = "MOVING"
	MonitorStateReconnecting = "RECONNECTING"
	MonitorStateStopped      = "STOPPED"
	MonitorStateNotFound     = "NOT_FOUND"
)

type MonitorState struct {
	Camera       string    `json:"camera"`
	CurrentState string    `json:"state"`
	Since        time.Time `json:"since"`
	LastError    string    `json:"last_error,omitempty"`
}

// StateTracker keeps the last reported state of every camera monitor. Monitors only write to it.
type StateTracker struct {
	states map[string]*MonitorState
	mux    *sync.RWMutex
}

func NewStateTracker() *StateTracker {
	return &StateTracker{states: map[string]*MonitorState{}, mux: &sync.RWMutex{}}
}

func (tr *StateTracker) SetMonitorState(camera, state string) {
	tr.mux.Lock()
	defer tr.mux.Unlock()
	st, ok := tr.states[camera]
	if !ok {
		st = &MonitorState{Camera: camera}
		tr.states[camera] = st
	}
	if st.CurrentState != state {
		st.CurrentState = state
		st.Since = time.Now()
	}
	if state == MonitorStateStable || state == MonitorStateMoving {
		st.LastError = ""
	}
}

func (tr *StateTracker) SetMonitorError(camera string, err error) {
	tr.mux.Lock()
	defer tr.mux.Unlock()
	st, ok := tr.states[camera]
	if !ok {
		st = &MonitorState{Camera: camera, CurrentState: MonitorStateConnecting, Since: time.Now()}
		tr.states[camera] = st
	}
	st.LastError = err.Error()
}

// GetMonitorState returns a copy of the camera state, NOT_FOUND when the camera never reported.
func (tr *StateTracker) GetMonitorState(camera string) MonitorState {
	tr.mux.RLock()
	defer tr.mux.RUnlock()
	st, ok := tr.states[camera]
	if !ok {
		return MonitorState{Camera: camera, CurrentState: MonitorStateNotFound}
	}
	return *st
}

// Snapshot returns copies of all states ordered by camera name.
func (tr *StateTracker) Snapshot() []MonitorState {
	tr.mux.RLock()
	defer tr.mux.RUnlock()
	list := make([]MonitorState, 0, len(tr.states))
	for _, st := range tr.states {
		list = append(list, *st)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Camera < list[j].Camera })
	return list
}

// WaitForMonitorState blocks until the camera reaches state or the wait times out.
func (tr *StateTracker) WaitForMonitorState(camera, state string, timeout time.Duration) bool {
	endTime := time.Now().Add(timeout)
	for {
		if tr.GetMonitorState(camera).CurrentState == state {
			return true
		}
		if time.Now().After(endTime) {
			return false
		}
		time.Sleep(10 * time.Millisecond)
	}
}
