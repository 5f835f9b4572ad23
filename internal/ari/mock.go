package ari

import (
	"context"
	"fmt"
	"sync"
)

// MockAdapter records every command issued against it and lets tests
// script failures and synthetic channel/bridge ids, the same role
// the reference publisher's in-memory mock plays for MQTT publishes.
type MockAdapter struct {
	mu sync.Mutex

	Originated []OriginateRequest
	Answered   []string
	HungUp     []string
	Bridges    []string
	Recordings []RecordingRequest
	StoppedBridgeRec []string
	StoppedAPIRec    []string

	nextChannelID int
	nextBridgeID  int

	OriginateErr error
	AnswerErr    error
	HangupErr    error
}

func NewMockAdapter() *MockAdapter {
	return &MockAdapter{}
}

func (m *MockAdapter) Originate(_ context.Context, req OriginateRequest) (*Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.OriginateErr != nil {
		return nil, m.OriginateErr
	}
	m.nextChannelID++
	m.Originated = append(m.Originated, req)
	return &Channel{ID: fmt.Sprintf("chan-%d", m.nextChannelID), Name: req.Endpoint}, nil
}

func (m *MockAdapter) Answer(_ context.Context, channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AnswerErr != nil {
		return m.AnswerErr
	}
	m.Answered = append(m.Answered, channelID)
	return nil
}

func (m *MockAdapter) Hangup(_ context.Context, channelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.HangupErr != nil {
		return m.HangupErr
	}
	m.HungUp = append(m.HungUp, channelID)
	return nil
}

func (m *MockAdapter) CreateBridge(_ context.Context, name string) (*Bridge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextBridgeID++
	m.Bridges = append(m.Bridges, name)
	return &Bridge{ID: fmt.Sprintf("bridge-%d", m.nextBridgeID), Name: name, Type: "mixing"}, nil
}

func (m *MockAdapter) AddChannelToBridge(_ context.Context, _, _ string) error { return nil }

func (m *MockAdapter) DestroyBridge(_ context.Context, _ string) error { return nil }

func (m *MockAdapter) StartRecording(_ context.Context, _ string, req RecordingRequest) (*Recording, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Recordings = append(m.Recordings, req)
	return &Recording{Name: req.Name, Format: req.Format}, nil
}

func (m *MockAdapter) StopRecordingViaBridge(_ context.Context, bridgeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StoppedBridgeRec = append(m.StoppedBridgeRec, bridgeID)
	return nil
}

func (m *MockAdapter) StopRecordingViaAPI(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StoppedAPIRec = append(m.StoppedAPIRec, name)
	return nil
}

func (m *MockAdapter) Start(ctx context.Context, _ string) (<-chan Event, <-chan error, error) {
	events := make(chan Event)
	errs := make(chan error)
	go func() {
		<-ctx.Done()
		close(events)
		close(errs)
	}()
	return events, errs, nil
}

// OriginateCount returns the number of originate commands issued so far.
func (m *MockAdapter) OriginateCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Originated)
}
