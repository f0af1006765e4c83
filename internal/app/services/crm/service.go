// Package crm exposes the operator-facing entity operations that feed the
// automation engine. Every mutation that maps to a trigger type dispatches
// an event to the sink after the store write succeeds.
package crm

import (
	"context"

	apperrors "github.com/flowdesk/automation_layer/internal/errors"

	domain "github.com/flowdesk/automation_layer/internal/app/domain/crm"
	"github.com/flowdesk/automation_layer/internal/app/domain/workflow"
	"github.com/flowdesk/automation_layer/internal/app/storage"
	"github.com/flowdesk/automation_layer/pkg/logger"
)

// EventSink receives domain events for trigger matching. The workflow
// service implements it.
type EventSink interface {
	HandleEvent(ctx context.Context, event workflow.Event) error
}

// Service wraps the CRM stores and turns operator actions into engine
// events. Event dispatch failures are logged, never surfaced: the entity
// write is the source of truth and automation is best-effort downstream.
type Service struct {
	clients   storage.ClientStore
	tasks     storage.TaskStore
	notes     storage.NoteStore
	documents storage.DocumentRequestStore
	sink      EventSink
	log       *logger.Logger
}

// NewService builds the CRM service. A nil sink disables event dispatch.
func NewService(clients storage.ClientStore, tasks storage.TaskStore, notes storage.NoteStore, documents storage.DocumentRequestStore, sink EventSink, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("crm-service")
	}
	return &Service{
		clients:   clients,
		tasks:     tasks,
		notes:     notes,
		documents: documents,
		sink:      sink,
		log:       log,
	}
}

func (s *Service) dispatch(ctx context.Context, event workflow.Event) {
	if s.sink == nil {
		return
	}
	if err := s.sink.HandleEvent(ctx, event); err != nil {
		s.log.WithField("event_type", string(event.Type)).
			WithField("client_id", event.ClientID).
			WithError(err).
			Error("Event dispatch failed")
	}
}

// CreateClient persists a new client and fires CLIENT_CREATED.
func (s *Service) CreateClient(ctx context.Context, client domain.Client) (domain.Client, error) {
	if client.FirstName == "" && client.LastName == "" {
		return domain.Client{}, apperrors.Validation("client name is required")
	}
	created, err := s.clients.CreateClient(ctx, client)
	if err != nil {
		return domain.Client{}, err
	}
	s.dispatch(ctx, workflow.Event{
		Type:     workflow.TriggerClientCreated,
		ClientID: created.ID,
		Status:   created.Status,
	})
	return created, nil
}

// GetClient fetches one client.
func (s *Service) GetClient(ctx context.Context, id string) (domain.Client, error) {
	return s.clients.GetClient(ctx, id)
}

// UpdateClientStatus transitions a client's status and fires
// CLIENT_STATUS_CHANGED with both sides of the transition.
func (s *Service) UpdateClientStatus(ctx context.Context, clientID, status string) (domain.Client, error) {
	if status == "" {
		return domain.Client{}, apperrors.Validation("status is required")
	}
	client, err := s.clients.GetClient(ctx, clientID)
	if err != nil {
		return domain.Client{}, err
	}
	from := client.Status
	if from == status {
		return client, nil
	}
	client.Status = status
	updated, err := s.clients.UpdateClient(ctx, client)
	if err != nil {
		return domain.Client{}, err
	}
	s.dispatch(ctx, workflow.Event{
		Type:       workflow.TriggerClientStatusChanged,
		ClientID:   updated.ID,
		FromStatus: from,
		ToStatus:   status,
	})
	return updated, nil
}

// AssignClient sets the owning user and fires CLIENT_ASSIGNED.
func (s *Service) AssignClient(ctx context.Context, clientID, userID string) (domain.Client, error) {
	if userID == "" {
		return domain.Client{}, apperrors.Validation("userId is required")
	}
	client, err := s.clients.GetClient(ctx, clientID)
	if err != nil {
		return domain.Client{}, err
	}
	client.AssignedTo = userID
	updated, err := s.clients.UpdateClient(ctx, client)
	if err != nil {
		return domain.Client{}, err
	}
	s.dispatch(ctx, workflow.Event{
		Type:       workflow.TriggerClientAssigned,
		ClientID:   updated.ID,
		UserID:     userID,
		AssignedTo: userID,
	})
	return updated, nil
}

// AddTag tags a client and fires TAG_ADDED unless the tag was already
// present.
func (s *Service) AddTag(ctx context.Context, clientID, tag string) (domain.Client, error) {
	if tag == "" {
		return domain.Client{}, apperrors.Validation("tag is required")
	}
	client, err := s.clients.GetClient(ctx, clientID)
	if err != nil {
		return domain.Client{}, err
	}
	for _, existing := range client.Tags {
		if existing == tag {
			return client, nil
		}
	}
	client.Tags = append(client.Tags, tag)
	updated, err := s.clients.UpdateClient(ctx, client)
	if err != nil {
		return domain.Client{}, err
	}
	s.dispatch(ctx, workflow.Event{
		Type:     workflow.TriggerTagAdded,
		ClientID: updated.ID,
		Tag:      tag,
	})
	return updated, nil
}

// RemoveTag untags a client. Tag removal is not a trigger type, so no
// event fires.
func (s *Service) RemoveTag(ctx context.Context, clientID, tag string) (domain.Client, error) {
	client, err := s.clients.GetClient(ctx, clientID)
	if err != nil {
		return domain.Client{}, err
	}
	kept := client.Tags[:0]
	for _, existing := range client.Tags {
		if existing != tag {
			kept = append(kept, existing)
		}
	}
	client.Tags = kept
	return s.clients.UpdateClient(ctx, client)
}

// CreateTask persists an operator-created task.
func (s *Service) CreateTask(ctx context.Context, task domain.Task) (domain.Task, error) {
	if task.Title == "" {
		return domain.Task{}, apperrors.Validation("task title is required")
	}
	return s.tasks.CreateTask(ctx, task)
}

// CompleteTask marks a task done and fires TASK_COMPLETED. Completing an
// already-completed task is a no-op.
func (s *Service) CompleteTask(ctx context.Context, taskID string) (domain.Task, error) {
	task, err := s.tasks.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}
	if task.Completed {
		return task, nil
	}
	task.Completed = true
	updated, err := s.tasks.UpdateTask(ctx, task)
	if err != nil {
		return domain.Task{}, err
	}
	s.dispatch(ctx, workflow.Event{
		Type:     workflow.TriggerTaskCompleted,
		ClientID: updated.ClientID,
		Priority: updated.Priority,
	})
	return updated, nil
}

// AddNote records a note and fires NOTE_ADDED.
func (s *Service) AddNote(ctx context.Context, note domain.Note) (domain.Note, error) {
	if note.Content == "" {
		return domain.Note{}, apperrors.Validation("note content is required")
	}
	created, err := s.notes.CreateNote(ctx, note)
	if err != nil {
		return domain.Note{}, err
	}
	s.dispatch(ctx, workflow.Event{
		Type:     workflow.TriggerNoteAdded,
		ClientID: created.ClientID,
		Category: created.Category,
	})
	return created, nil
}

// RecordDocumentUpload notes a received document, fulfills any pending
// request for that document type, and fires DOCUMENT_UPLOADED. The binary
// itself is stored elsewhere; the engine only needs the fact of the upload
// and its type.
func (s *Service) RecordDocumentUpload(ctx context.Context, clientID, documentType string) error {
	if documentType == "" {
		return apperrors.Validation("documentType is required")
	}
	requests, err := s.documents.ListDocumentRequests(ctx, clientID)
	if err != nil {
		return err
	}
	for _, req := range requests {
		if req.Fulfilled || req.DocumentType != documentType {
			continue
		}
		req.Fulfilled = true
		if _, err := s.documents.UpdateDocumentRequest(ctx, req); err != nil {
			s.log.WithField("request_id", req.ID).WithError(err).Warn("Failed to mark document request fulfilled")
		}
	}
	s.dispatch(ctx, workflow.Event{
		Type:         workflow.TriggerDocumentUploaded,
		ClientID:     clientID,
		DocumentType: documentType,
	})
	return nil
}
