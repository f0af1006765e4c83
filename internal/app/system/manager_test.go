package system

import (
	"context"
	"fmt"
	"testing"
)

// recordingService appends its lifecycle events to a shared trace.
type recordingService struct {
	name     string
	trace    *[]string
	startErr error
}

func (s *recordingService) Name() string { return s.name }

func (s *recordingService) Start(context.Context) error {
	*s.trace = append(*s.trace, "start:"+s.name)
	return s.startErr
}

func (s *recordingService) Stop(context.Context) error {
	*s.trace = append(*s.trace, "stop:"+s.name)
	return nil
}

func TestManagerStartStopOrder(t *testing.T) {
	var trace []string
	m := NewManager()
	for _, name := range []string{"a", "b", "c"} {
		if err := m.Register(&recordingService{name: name, trace: &trace}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	want := []string{"start:a", "start:b", "start:c", "stop:c", "stop:b", "stop:a"}
	if len(trace) != len(want) {
		t.Fatalf("trace %v, want %v", trace, want)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Fatalf("trace %v, want %v", trace, want)
		}
	}
}

func TestManagerStartFailureStopsStartedServices(t *testing.T) {
	var trace []string
	m := NewManager()
	_ = m.Register(&recordingService{name: "ok", trace: &trace})
	_ = m.Register(&recordingService{name: "broken", trace: &trace, startErr: fmt.Errorf("boom")})

	if err := m.Start(context.Background()); err == nil {
		t.Fatalf("expected start error")
	}
	// The already-started service must be stopped again.
	last := trace[len(trace)-1]
	if last != "stop:ok" {
		t.Fatalf("expected rollback stop of started service, trace %v", trace)
	}
}

func TestManagerRejectsDuplicatesAndLateRegistration(t *testing.T) {
	m := NewManager()
	if err := m.Register(NoopService{ServiceName: "scheduler"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.Register(NoopService{ServiceName: "scheduler"}); err == nil {
		t.Fatalf("expected duplicate name to be rejected")
	}
	if err := m.Register(nil); err == nil {
		t.Fatalf("expected nil service to be rejected")
	}

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Register(NoopService{ServiceName: "late"}); err == nil {
		t.Fatalf("expected registration after start to be rejected")
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
