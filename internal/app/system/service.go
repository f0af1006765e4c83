package system

import "context"

// Service represents a lifecycle-managed component. Engine modules that run
// background work (the workflow runner, settlement-style pollers) implement
// this interface so the manager can start and stop them deterministically.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// NoopService satisfies Service for passive modules that only need to be
// visible to the lifecycle manager.
type NoopService struct {
	ServiceName string
}

func (s NoopService) Name() string                   { return s.ServiceName }
func (s NoopService) Start(context.Context) error    { return nil }
func (s NoopService) Stop(ctx context.Context) error { return nil }
