package activity

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/juliancabezast/rentfinder-cleveland-sub003/pkg/leasing"
)

type captureSink struct {
	events []leasing.AuditEvent
	err    error
}

func (s *captureSink) Append(_ context.Context, event leasing.AuditEvent) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func TestMultiFansOutToAllSinks(t *testing.T) {
	a, b := &captureSink{}, &captureSink{}
	m := NewMulti(a, b)

	event := leasing.AuditEvent{ID: "ev-1", Action: "task.dispatched"}
	require.NoError(t, m.Append(context.Background(), event))

	require.Len(t, a.events, 1)
	require.Len(t, b.events, 1)
	assert.Equal(t, "ev-1", a.events[0].ID)
}

func TestMultiContinuesPastFailingSink(t *testing.T) {
	broken := &captureSink{err: errors.New("broker down")}
	working := &captureSink{}
	m := NewMulti(broken, working)

	err := m.Append(context.Background(), leasing.AuditEvent{ID: "ev-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")

	// The healthy sink still received the event.
	assert.Len(t, working.events, 1)
}

func TestMultiJoinsAllErrors(t *testing.T) {
	first := &captureSink{err: errors.New("first failure")}
	second := &captureSink{err: errors.New("second failure")}
	m := NewMulti(first, second)

	err := m.Append(context.Background(), leasing.AuditEvent{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first failure")
	assert.Contains(t, err.Error(), "second failure")
}

func TestSlogLoggerNeverFails(t *testing.T) {
	// The log mirror participates in the fan-out without contributing errors.
	sink := &captureSink{}
	m := NewMulti(SlogLogger{}, sink)

	require.NoError(t, m.Append(context.Background(), leasing.AuditEvent{
		ID:       "ev-1",
		ActorKey: leasing.ActorTaskDispatcher,
		Action:   "task.dispatched",
		Status:   leasing.AuditSuccess,
	}))
	assert.Len(t, sink.events, 1)
}

func TestNewMultiSkipsNilSinks(t *testing.T) {
	sink := &captureSink{}
	m := NewMulti(nil, sink, nil)

	require.NoError(t, m.Append(context.Background(), leasing.AuditEvent{}))
	assert.Len(t, m, 1)
	assert.Len(t, sink.events, 1)
}
