package module

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestState_Transitions(t *testing.T) {
	s := NewState()
	assert.Equal(t, StatusStopped, s.Status())
	assert.False(t, s.IsRunning())

	wait := s.Wait()
	s.Set(StatusRunning)

	select {
	case <-wait:
	case <-time.After(time.Second):
		t.Fatal("wait channel not closed after transition")
	}
	assert.True(t, s.IsRunning())
}

func TestState_SetSameStatusDoesNotWake(t *testing.T) {
	s := NewState()
	s.Set(StatusRunning)

	wait := s.Wait()
	s.Set(StatusRunning)

	select {
	case <-wait:
		t.Fatal("wait fired without a transition")
	default:
	}
}

func TestState_WaitIsPerTransition(t *testing.T) {
	s := NewState()
	first := s.Wait()
	s.Set(StatusStarting)
	second := s.Wait()

	assert.NotEqual(t, first, second)

	select {
	case <-second:
		t.Fatal("new wait channel already closed")
	default:
	}

	s.Set(StatusFailed)
	<-second
	assert.Equal(t, StatusFailed, s.Status())
}

func TestSnapshot_Healthy(t *testing.T) {
	snap := Snapshot{Components: []ComponentStatus{
		{Name: "manager", Status: StatusRunning},
		{Name: "executor", Status: StatusRunning},
	}}
	assert.True(t, snap.Healthy())

	snap.Components = append(snap.Components, ComponentStatus{Name: "db", Status: StatusFailed})
	assert.False(t, snap.Healthy())
}
