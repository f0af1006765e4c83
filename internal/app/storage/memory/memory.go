package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/flowdesk/automation_layer/internal/app/domain/crm"
	"github.com/flowdesk/automation_layer/internal/app/domain/workflow"
	"github.com/flowdesk/automation_layer/internal/app/storage"
	apperrors "github.com/flowdesk/automation_layer/internal/errors"
)

// Store is an in-memory implementation of the storage interfaces. It is safe
// for concurrent use and is primarily intended for tests and local
// development.
type Store struct {
	mu               sync.RWMutex
	nextID           int64
	workflows        map[string]workflow.Workflow
	versions         map[string][]workflow.Version
	executions       map[string]workflow.Execution
	replaySeen       map[string]time.Time
	clients          map[string]crm.Client
	tasks            map[string][]crm.Task
	notes            map[string][]crm.Note
	communications   map[string][]crm.Communication
	notifications    map[string][]crm.Notification
	documentRequests map[string][]crm.DocumentRequest
}

var _ storage.WorkflowStore = (*Store)(nil)
var _ storage.WorkflowVersionStore = (*Store)(nil)
var _ storage.ExecutionStore = (*Store)(nil)
var _ storage.ReplayStore = (*Store)(nil)
var _ storage.ClientStore = (*Store)(nil)
var _ storage.TaskStore = (*Store)(nil)
var _ storage.NoteStore = (*Store)(nil)
var _ storage.CommunicationStore = (*Store)(nil)
var _ storage.NotificationStore = (*Store)(nil)
var _ storage.DocumentRequestStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		nextID:           1,
		workflows:        make(map[string]workflow.Workflow),
		versions:         make(map[string][]workflow.Version),
		executions:       make(map[string]workflow.Execution),
		replaySeen:       make(map[string]time.Time),
		clients:          make(map[string]crm.Client),
		tasks:            make(map[string][]crm.Task),
		notes:            make(map[string][]crm.Note),
		communications:   make(map[string][]crm.Communication),
		notifications:    make(map[string][]crm.Notification),
		documentRequests: make(map[string][]crm.DocumentRequest),
	}
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// WorkflowStore implementation ------------------------------------------------

func (s *Store) CreateWorkflow(_ context.Context, wf workflow.Workflow) (workflow.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if wf.ID == "" {
		wf.ID = s.nextIDLocked()
	} else if _, exists := s.workflows[wf.ID]; exists {
		return workflow.Workflow{}, fmt.Errorf("workflow %s already exists", wf.ID)
	}

	now := time.Now().UTC()
	wf.CreatedAt = now
	wf.UpdatedAt = now
	if wf.Version == 0 {
		wf.Version = 1
	}

	s.workflows[wf.ID] = cloneWorkflow(wf)
	return cloneWorkflow(wf), nil
}

func (s *Store) UpdateWorkflow(_ context.Context, wf workflow.Workflow) (workflow.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateWorkflowLocked(wf)
}

func (s *Store) UpdateWorkflowWithSnapshot(_ context.Context, wf workflow.Workflow, snapshot workflow.Version) (workflow.Workflow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workflows[wf.ID]; !ok {
		return workflow.Workflow{}, apperrors.NotFound("workflow %s not found", wf.ID)
	}
	if _, err := s.appendVersionLocked(snapshot); err != nil {
		return workflow.Workflow{}, err
	}
	return s.updateWorkflowLocked(wf)
}

func (s *Store) updateWorkflowLocked(wf workflow.Workflow) (workflow.Workflow, error) {
	original, ok := s.workflows[wf.ID]
	if !ok {
		return workflow.Workflow{}, apperrors.NotFound("workflow %s not found", wf.ID)
	}

	wf.CreatedAt = original.CreatedAt
	wf.UpdatedAt = time.Now().UTC()

	s.workflows[wf.ID] = cloneWorkflow(wf)
	return cloneWorkflow(wf), nil
}

func (s *Store) GetWorkflow(_ context.Context, id string) (workflow.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wf, ok := s.workflows[id]
	if !ok {
		return workflow.Workflow{}, apperrors.NotFound("workflow %s not found", id)
	}
	return cloneWorkflow(wf), nil
}

func (s *Store) ListWorkflows(_ context.Context) ([]workflow.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]workflow.Workflow, 0, len(s.workflows))
	for _, wf := range s.workflows {
		result = append(result, cloneWorkflow(wf))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) ListActiveWorkflowsByTrigger(_ context.Context, t workflow.TriggerType) ([]workflow.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]workflow.Workflow, 0)
	for _, wf := range s.workflows {
		if wf.IsActive && !wf.IsTemplate && wf.TriggerType == t {
			result = append(result, cloneWorkflow(wf))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) DeleteWorkflow(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workflows[id]; !ok {
		return apperrors.NotFound("workflow %s not found", id)
	}
	delete(s.workflows, id)
	delete(s.versions, id)
	for execID, exec := range s.executions {
		if exec.WorkflowID == id {
			delete(s.executions, execID)
		}
	}
	return nil
}

// WorkflowVersionStore implementation -----------------------------------------

func (s *Store) AppendWorkflowVersion(_ context.Context, ver workflow.Version) (workflow.Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendVersionLocked(ver)
}

func (s *Store) appendVersionLocked(ver workflow.Version) (workflow.Version, error) {
	for _, existing := range s.versions[ver.WorkflowID] {
		if existing.Version == ver.Version {
			return workflow.Version{}, fmt.Errorf("workflow %s version %d already snapshotted", ver.WorkflowID, ver.Version)
		}
	}
	if ver.ID == "" {
		ver.ID = s.nextIDLocked()
	}
	ver.CreatedAt = time.Now().UTC()
	s.versions[ver.WorkflowID] = append(s.versions[ver.WorkflowID], cloneVersion(ver))
	return cloneVersion(ver), nil
}

func (s *Store) GetWorkflowVersion(_ context.Context, workflowID string, version int) (workflow.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ver := range s.versions[workflowID] {
		if ver.Version == version {
			return cloneVersion(ver), nil
		}
	}
	return workflow.Version{}, apperrors.NotFound("workflow %s has no version %d", workflowID, version)
}

func (s *Store) ListWorkflowVersions(_ context.Context, workflowID string) ([]workflow.Version, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vers := s.versions[workflowID]
	result := make([]workflow.Version, 0, len(vers))
	for _, ver := range vers {
		result = append(result, cloneVersion(ver))
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Version < result[j].Version })
	return result, nil
}

// ExecutionStore implementation -----------------------------------------------

func (s *Store) CreateExecution(_ context.Context, exec workflow.Execution) (workflow.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if exec.ID == "" {
		exec.ID = s.nextIDLocked()
	} else if _, exists := s.executions[exec.ID]; exists {
		return workflow.Execution{}, fmt.Errorf("execution %s already exists", exec.ID)
	}

	now := time.Now().UTC()
	exec.CreatedAt = now
	exec.UpdatedAt = now

	s.executions[exec.ID] = cloneExecution(exec)
	return cloneExecution(exec), nil
}

func (s *Store) UpdateExecution(_ context.Context, exec workflow.Execution) (workflow.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.executions[exec.ID]
	if !ok {
		return workflow.Execution{}, apperrors.NotFound("execution %s not found", exec.ID)
	}

	exec.CreatedAt = original.CreatedAt
	exec.UpdatedAt = time.Now().UTC()

	s.executions[exec.ID] = cloneExecution(exec)
	return cloneExecution(exec), nil
}

func (s *Store) GetExecution(_ context.Context, id string) (workflow.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exec, ok := s.executions[id]
	if !ok {
		return workflow.Execution{}, apperrors.NotFound("execution %s not found", id)
	}
	return cloneExecution(exec), nil
}

func (s *Store) ListExecutions(_ context.Context, workflowID string) ([]workflow.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]workflow.Execution, 0)
	for _, exec := range s.executions {
		if workflowID == "" || exec.WorkflowID == workflowID {
			result = append(result, cloneExecution(exec))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (s *Store) ListDueExecutions(_ context.Context, now time.Time) ([]workflow.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]workflow.Execution, 0)
	for _, exec := range s.executions {
		if exec.Status == workflow.StatusRunning && exec.WaitUntil != nil && !exec.WaitUntil.After(now) {
			result = append(result, cloneExecution(exec))
		}
	}
	return result, nil
}

// ReplayStore implementation --------------------------------------------------

// CheckAndInsert performs the lookup and insert under one lock so two
// simultaneous identical deliveries cannot both pass.
func (s *Store) CheckAndInsert(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if expiry, ok := s.replaySeen[key]; ok && expiry.After(now) {
		return true, nil
	}
	// Expired entries are overwritten; sweep opportunistically.
	for k, expiry := range s.replaySeen {
		if !expiry.After(now) {
			delete(s.replaySeen, k)
		}
	}
	s.replaySeen[key] = now.Add(ttl)
	return false, nil
}

// ClientStore implementation --------------------------------------------------

func (s *Store) CreateClient(_ context.Context, client crm.Client) (crm.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if client.ID == "" {
		client.ID = s.nextIDLocked()
	} else if _, exists := s.clients[client.ID]; exists {
		return crm.Client{}, fmt.Errorf("client %s already exists", client.ID)
	}

	now := time.Now().UTC()
	client.CreatedAt = now
	client.UpdatedAt = now
	client.Tags = cloneStrings(client.Tags)

	s.clients[client.ID] = client
	return cloneClient(client), nil
}

func (s *Store) UpdateClient(_ context.Context, client crm.Client) (crm.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.clients[client.ID]
	if !ok {
		return crm.Client{}, apperrors.NotFound("client %s not found", client.ID)
	}

	client.CreatedAt = original.CreatedAt
	client.UpdatedAt = time.Now().UTC()
	client.Tags = cloneStrings(client.Tags)

	s.clients[client.ID] = client
	return cloneClient(client), nil
}

func (s *Store) GetClient(_ context.Context, id string) (crm.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[id]
	if !ok {
		return crm.Client{}, apperrors.NotFound("client %s not found", id)
	}
	return cloneClient(client), nil
}

// Remaining CRM stores --------------------------------------------------------

func (s *Store) CreateTask(_ context.Context, task crm.Task) (crm.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if task.ID == "" {
		task.ID = s.nextIDLocked()
	}
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now
	s.tasks[task.ClientID] = append(s.tasks[task.ClientID], task)
	return task, nil
}

func (s *Store) GetTask(_ context.Context, id string) (crm.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, tasks := range s.tasks {
		for _, task := range tasks {
			if task.ID == id {
				return task, nil
			}
		}
	}
	return crm.Task{}, apperrors.NotFound("task %s not found", id)
}

func (s *Store) UpdateTask(_ context.Context, task crm.Task) (crm.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks := s.tasks[task.ClientID]
	for i, existing := range tasks {
		if existing.ID == task.ID {
			task.CreatedAt = existing.CreatedAt
			task.UpdatedAt = time.Now().UTC()
			tasks[i] = task
			return task, nil
		}
	}
	return crm.Task{}, apperrors.NotFound("task %s not found", task.ID)
}

func (s *Store) ListTasks(_ context.Context, clientID string) ([]crm.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]crm.Task(nil), s.tasks[clientID]...), nil
}

func (s *Store) CreateNote(_ context.Context, note crm.Note) (crm.Note, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if note.ID == "" {
		note.ID = s.nextIDLocked()
	}
	note.CreatedAt = time.Now().UTC()
	s.notes[note.ClientID] = append(s.notes[note.ClientID], note)
	return note, nil
}

func (s *Store) ListNotes(_ context.Context, clientID string) ([]crm.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]crm.Note(nil), s.notes[clientID]...), nil
}

func (s *Store) CreateCommunication(_ context.Context, comm crm.Communication) (crm.Communication, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if comm.ID == "" {
		comm.ID = s.nextIDLocked()
	}
	comm.CreatedAt = time.Now().UTC()
	s.communications[comm.ClientID] = append(s.communications[comm.ClientID], comm)
	return comm, nil
}

func (s *Store) ListCommunications(_ context.Context, clientID string) ([]crm.Communication, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]crm.Communication(nil), s.communications[clientID]...), nil
}

func (s *Store) CreateNotification(_ context.Context, note crm.Notification) (crm.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if note.ID == "" {
		note.ID = s.nextIDLocked()
	}
	note.CreatedAt = time.Now().UTC()
	s.notifications[note.UserID] = append(s.notifications[note.UserID], note)
	return note, nil
}

func (s *Store) ListNotifications(_ context.Context, userID string) ([]crm.Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]crm.Notification(nil), s.notifications[userID]...), nil
}

func (s *Store) CreateDocumentRequest(_ context.Context, req crm.DocumentRequest) (crm.DocumentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if req.ID == "" {
		req.ID = s.nextIDLocked()
	}
	req.CreatedAt = time.Now().UTC()
	s.documentRequests[req.ClientID] = append(s.documentRequests[req.ClientID], req)
	return req, nil
}

func (s *Store) UpdateDocumentRequest(_ context.Context, req crm.DocumentRequest) (crm.DocumentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	requests := s.documentRequests[req.ClientID]
	for i, existing := range requests {
		if existing.ID == req.ID {
			req.CreatedAt = existing.CreatedAt
			requests[i] = req
			return req, nil
		}
	}
	return crm.DocumentRequest{}, apperrors.NotFound("document request %s not found", req.ID)
}

func (s *Store) ListDocumentRequests(_ context.Context, clientID string) ([]crm.DocumentRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]crm.DocumentRequest(nil), s.documentRequests[clientID]...), nil
}

// Clone helpers ---------------------------------------------------------------

func cloneWorkflow(wf workflow.Workflow) workflow.Workflow {
	out := wf
	out.Conditions = cloneCondition(wf.Conditions)
	out.Actions = cloneActions(wf.Actions)
	return out
}

func cloneVersion(ver workflow.Version) workflow.Version {
	out := ver
	out.Definition.Conditions = cloneCondition(ver.Definition.Conditions)
	out.Definition.Actions = cloneActions(ver.Definition.Actions)
	return out
}

func cloneExecution(exec workflow.Execution) workflow.Execution {
	out := exec
	if exec.TriggerData != nil {
		data := make(map[string]interface{}, len(exec.TriggerData))
		for k, v := range exec.TriggerData {
			data[k] = v
		}
		out.TriggerData = data
	}
	out.WaitUntil = cloneTime(exec.WaitUntil)
	out.StartedAt = cloneTime(exec.StartedAt)
	out.CompletedAt = cloneTime(exec.CompletedAt)
	return out
}

func cloneClient(client crm.Client) crm.Client {
	out := client
	out.Tags = cloneStrings(client.Tags)
	return out
}

func cloneCondition(c *workflow.Condition) *workflow.Condition {
	if c == nil {
		return nil
	}
	out := *c
	if c.All != nil {
		out.All = cloneConditionList(c.All)
	}
	if c.Any != nil {
		out.Any = cloneConditionList(c.Any)
	}
	return &out
}

func cloneConditionList(list []workflow.Condition) []workflow.Condition {
	out := make([]workflow.Condition, len(list))
	for i := range list {
		out[i] = *cloneCondition(&list[i])
	}
	return out
}

func cloneActions(actions []workflow.Action) []workflow.Action {
	if actions == nil {
		return nil
	}
	out := make([]workflow.Action, len(actions))
	for i, act := range actions {
		out[i] = act
		if act.Config.Headers != nil {
			headers := make(map[string]string, len(act.Config.Headers))
			for k, v := range act.Config.Headers {
				headers[k] = v
			}
			out[i].Config.Headers = headers
		}
		out[i].Condition = cloneCondition(act.Condition)
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	out := *t
	return &out
}
