package entity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-cloud/internal/cloud"
	"github.com/nerrad567/gray-logic-cloud/internal/coordinator"
	"github.com/nerrad567/gray-logic-cloud/internal/device"
)

// fakeSource records commands and lets tests push updates.
type fakeSource struct {
	mu       sync.Mutex
	fn       coordinator.Callback
	commands []cloud.Command
	failOn   string // command name that fails
	err      error
	replay   *coordinator.Update
}

func (f *fakeSource) Subscribe(fn coordinator.Callback) (coordinator.Token, error) {
	f.mu.Lock()
	f.fn = fn
	replay := f.replay
	f.mu.Unlock()
	if replay != nil {
		fn(*replay)
	}
	return "tok-1", nil
}

func (f *fakeSource) Unsubscribe(token coordinator.Token) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	ok := f.fn != nil && token == "tok-1"
	f.fn = nil
	return ok
}

func (f *fakeSource) SendCommand(_ context.Context, cmd cloud.Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, cmd)
	if f.err != nil && (f.failOn == "" || f.failOn == cmd.Name) {
		return f.err
	}
	return nil
}

func (f *fakeSource) push(u coordinator.Update) {
	f.mu.Lock()
	fn := f.fn
	f.mu.Unlock()
	if fn != nil {
		fn(u)
	}
}

func (f *fakeSource) sent() []cloud.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]cloud.Command(nil), f.commands...)
}

// stateSink records published states.
type stateSink struct {
	mu     sync.Mutex
	states []State
}

func (s *stateSink) PublishState(st State) {
	s.mu.Lock()
	s.states = append(s.states, st)
	s.mu.Unlock()
}

func (s *stateSink) last() (State, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.states) == 0 {
		return State{}, 0
	}
	return s.states[len(s.states)-1], len(s.states)
}

func intPtr(v int) *int { return &v }

func lightStatus(power cloud.PowerState, brightness, kelvin *int) *cloud.Status {
	return &cloud.Status{DeviceID: "L1", Power: &power, Brightness: brightness, ColorTemperature: kelvin}
}

var testLight = device.Device{ID: "L1", Name: "Kitchen", Kind: device.KindLight, VendorType: "Color Bulb"}
var testPlug = device.Device{ID: "P1", Name: "Desk", Kind: device.KindSensor, VendorType: "Plug Mini (US)"}

func TestCommandError(t *testing.T) {
	err := &CommandError{EntityID: "L1", Command: "turnOn", Err: fmt.Errorf("x: %w", cloud.ErrAuth)}
	if !errors.Is(err, cloud.ErrAuth) {
		t.Error("CommandError does not unwrap to the cause")
	}
	if err.Error() == "" {
		t.Error("empty message")
	}
}

func TestBuild(t *testing.T) {
	reg := coordinator.NewRegistry(nil, coordinator.Options{})
	defer reg.Stop()

	light, _ := reg.Add(testLight)
	plug, _ := reg.Add(testPlug)
	remote, _ := reg.Add(device.Device{ID: "R1", Name: "TV", Kind: device.KindRemote})

	if got := Build(light, nil, nil, nil); len(got) != 1 || got[0].Kind() != device.KindLight {
		t.Errorf("Build(light) = %v", got)
	}
	if got := Build(plug, nil, nil, nil); len(got) != len(cloud.SensorFields) {
		t.Errorf("Build(plug) = %d entities", len(got))
	}
	if got := Build(remote, nil, nil, nil); got != nil {
		t.Errorf("Build(remote) = %v", got)
	}
}
