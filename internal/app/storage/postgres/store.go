package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/flowdesk/automation_layer/internal/app/domain/crm"
	"github.com/flowdesk/automation_layer/internal/app/domain/workflow"
	"github.com/flowdesk/automation_layer/internal/app/storage"
	apperrors "github.com/flowdesk/automation_layer/internal/errors"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ storage.WorkflowStore = (*Store)(nil)
var _ storage.WorkflowVersionStore = (*Store)(nil)
var _ storage.ExecutionStore = (*Store)(nil)
var _ storage.ClientStore = (*Store)(nil)
var _ storage.TaskStore = (*Store)(nil)
var _ storage.NoteStore = (*Store)(nil)
var _ storage.CommunicationStore = (*Store)(nil)
var _ storage.NotificationStore = (*Store)(nil)
var _ storage.DocumentRequestStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: sqlx.NewDb(db, "postgres")}
}

// --- row types ---------------------------------------------------------------

type workflowRow struct {
	ID            string         `db:"id"`
	Name          string         `db:"name"`
	Description   string         `db:"description"`
	IsActive      bool           `db:"is_active"`
	IsTemplate    bool           `db:"is_template"`
	TriggerType   string         `db:"trigger_type"`
	TriggerConfig []byte         `db:"trigger_config"`
	Conditions    []byte         `db:"conditions"`
	Actions       []byte         `db:"actions"`
	Version       int            `db:"version"`
	CreatedBy     sql.NullString `db:"created_by"`
	CreatedAt     time.Time      `db:"created_at"`
	UpdatedAt     time.Time      `db:"updated_at"`
}

func (r workflowRow) toDomain() (workflow.Workflow, error) {
	wf := workflow.Workflow{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		IsActive:    r.IsActive,
		IsTemplate:  r.IsTemplate,
		TriggerType: workflow.TriggerType(r.TriggerType),
		Version:     r.Version,
		CreatedBy:   r.CreatedBy.String,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if len(r.TriggerConfig) > 0 {
		if err := json.Unmarshal(r.TriggerConfig, &wf.TriggerConfig); err != nil {
			return workflow.Workflow{}, fmt.Errorf("decode trigger config: %w", err)
		}
	}
	if len(r.Conditions) > 0 {
		wf.Conditions = &workflow.Condition{}
		if err := json.Unmarshal(r.Conditions, wf.Conditions); err != nil {
			return workflow.Workflow{}, fmt.Errorf("decode conditions: %w", err)
		}
	}
	if len(r.Actions) > 0 {
		if err := json.Unmarshal(r.Actions, &wf.Actions); err != nil {
			return workflow.Workflow{}, fmt.Errorf("decode actions: %w", err)
		}
	}
	return wf, nil
}

func workflowArgs(wf workflow.Workflow) (triggerConfig, conditions, actions []byte, err error) {
	triggerConfig, err = json.Marshal(wf.TriggerConfig)
	if err != nil {
		return nil, nil, nil, err
	}
	if wf.Conditions != nil {
		conditions, err = json.Marshal(wf.Conditions)
		if err != nil {
			return nil, nil, nil, err
		}
	}
	actions, err = json.Marshal(wf.Actions)
	return triggerConfig, conditions, actions, err
}

type executionRow struct {
	ID           string         `db:"id"`
	WorkflowID   string         `db:"workflow_id"`
	ClientID     sql.NullString `db:"client_id"`
	Status       string         `db:"status"`
	CurrentStep  int            `db:"current_step"`
	TriggerData  []byte         `db:"trigger_data"`
	ErrorMessage sql.NullString `db:"error_message"`
	WaitUntil    *time.Time     `db:"wait_until"`
	StartedAt    *time.Time     `db:"started_at"`
	CompletedAt  *time.Time     `db:"completed_at"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

func (r executionRow) toDomain() (workflow.Execution, error) {
	exec := workflow.Execution{
		ID:           r.ID,
		WorkflowID:   r.WorkflowID,
		ClientID:     r.ClientID.String,
		Status:       workflow.ExecutionStatus(r.Status),
		CurrentStep:  r.CurrentStep,
		ErrorMessage: r.ErrorMessage.String,
		WaitUntil:    r.WaitUntil,
		StartedAt:    r.StartedAt,
		CompletedAt:  r.CompletedAt,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if len(r.TriggerData) > 0 {
		if err := json.Unmarshal(r.TriggerData, &exec.TriggerData); err != nil {
			return workflow.Execution{}, fmt.Errorf("decode trigger data: %w", err)
		}
	}
	return exec, nil
}

// --- WorkflowStore -----------------------------------------------------------

func (s *Store) CreateWorkflow(ctx context.Context, wf workflow.Workflow) (workflow.Workflow, error) {
	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}
	if wf.Version == 0 {
		wf.Version = 1
	}
	now := time.Now().UTC()
	wf.CreatedAt = now
	wf.UpdatedAt = now

	triggerConfig, conditions, actions, err := workflowArgs(wf)
	if err != nil {
		return workflow.Workflow{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflows (id, name, description, is_active, is_template, trigger_type,
			trigger_config, conditions, actions, version, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, wf.ID, wf.Name, wf.Description, wf.IsActive, wf.IsTemplate, string(wf.TriggerType),
		triggerConfig, nullBytes(conditions), actions, wf.Version, nullString(wf.CreatedBy), wf.CreatedAt, wf.UpdatedAt)
	if err != nil {
		return workflow.Workflow{}, err
	}
	return wf, nil
}

func (s *Store) UpdateWorkflow(ctx context.Context, wf workflow.Workflow) (workflow.Workflow, error) {
	return s.updateWorkflow(ctx, s.db, wf)
}

func (s *Store) UpdateWorkflowWithSnapshot(ctx context.Context, wf workflow.Workflow, snapshot workflow.Version) (workflow.Workflow, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return workflow.Workflow{}, err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := appendVersion(ctx, tx, snapshot); err != nil {
		return workflow.Workflow{}, err
	}
	updated, err := s.updateWorkflow(ctx, tx, wf)
	if err != nil {
		return workflow.Workflow{}, err
	}
	if err := tx.Commit(); err != nil {
		return workflow.Workflow{}, err
	}
	return updated, nil
}

func (s *Store) updateWorkflow(ctx context.Context, q sqlx.ExtContext, wf workflow.Workflow) (workflow.Workflow, error) {
	wf.UpdatedAt = time.Now().UTC()

	triggerConfig, conditions, actions, err := workflowArgs(wf)
	if err != nil {
		return workflow.Workflow{}, err
	}

	result, err := q.ExecContext(ctx, `
		UPDATE workflows
		SET name = $2, description = $3, is_active = $4, is_template = $5, trigger_type = $6,
			trigger_config = $7, conditions = $8, actions = $9, version = $10, updated_at = $11
		WHERE id = $1
	`, wf.ID, wf.Name, wf.Description, wf.IsActive, wf.IsTemplate, string(wf.TriggerType),
		triggerConfig, nullBytes(conditions), actions, wf.Version, wf.UpdatedAt)
	if err != nil {
		return workflow.Workflow{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return workflow.Workflow{}, apperrors.NotFound("workflow %s not found", wf.ID)
	}
	return wf, nil
}

const workflowColumns = `id, name, description, is_active, is_template, trigger_type,
	trigger_config, conditions, actions, version, created_by, created_at, updated_at`

func (s *Store) GetWorkflow(ctx context.Context, id string) (workflow.Workflow, error) {
	var row workflowRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+workflowColumns+` FROM workflows WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.Workflow{}, apperrors.NotFound("workflow %s not found", id)
	}
	if err != nil {
		return workflow.Workflow{}, err
	}
	return row.toDomain()
}

func (s *Store) ListWorkflows(ctx context.Context) ([]workflow.Workflow, error) {
	var rows []workflowRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+workflowColumns+` FROM workflows ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	return workflowsFromRows(rows)
}

func (s *Store) ListActiveWorkflowsByTrigger(ctx context.Context, t workflow.TriggerType) ([]workflow.Workflow, error) {
	var rows []workflowRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+workflowColumns+` FROM workflows
		WHERE is_active = TRUE AND is_template = FALSE AND trigger_type = $1
		ORDER BY created_at, id
	`, string(t))
	if err != nil {
		return nil, err
	}
	return workflowsFromRows(rows)
}

func (s *Store) DeleteWorkflow(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM workflows WHERE id = $1`, id)
	if err != nil {
		return err
	}
	// Versions and executions cascade via foreign keys.
	if rows, _ := result.RowsAffected(); rows == 0 {
		return apperrors.NotFound("workflow %s not found", id)
	}
	return nil
}

func workflowsFromRows(rows []workflowRow) ([]workflow.Workflow, error) {
	result := make([]workflow.Workflow, 0, len(rows))
	for _, row := range rows {
		wf, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		result = append(result, wf)
	}
	return result, nil
}

// --- WorkflowVersionStore ----------------------------------------------------

func (s *Store) AppendWorkflowVersion(ctx context.Context, ver workflow.Version) (workflow.Version, error) {
	return appendVersion(ctx, s.db, ver)
}

func appendVersion(ctx context.Context, q sqlx.ExtContext, ver workflow.Version) (workflow.Version, error) {
	if ver.ID == "" {
		ver.ID = uuid.NewString()
	}
	ver.CreatedAt = time.Now().UTC()

	definition, err := json.Marshal(ver.Definition)
	if err != nil {
		return workflow.Version{}, err
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO workflow_versions (id, workflow_id, version, definition, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, ver.ID, ver.WorkflowID, ver.Version, definition, ver.CreatedAt)
	if err != nil {
		return workflow.Version{}, err
	}
	return ver, nil
}

type versionRow struct {
	ID         string    `db:"id"`
	WorkflowID string    `db:"workflow_id"`
	Version    int       `db:"version"`
	Definition []byte    `db:"definition"`
	CreatedAt  time.Time `db:"created_at"`
}

func (r versionRow) toDomain() (workflow.Version, error) {
	ver := workflow.Version{
		ID:         r.ID,
		WorkflowID: r.WorkflowID,
		Version:    r.Version,
		CreatedAt:  r.CreatedAt,
	}
	if err := json.Unmarshal(r.Definition, &ver.Definition); err != nil {
		return workflow.Version{}, fmt.Errorf("decode version definition: %w", err)
	}
	return ver, nil
}

func (s *Store) GetWorkflowVersion(ctx context.Context, workflowID string, version int) (workflow.Version, error) {
	var row versionRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, workflow_id, version, definition, created_at
		FROM workflow_versions
		WHERE workflow_id = $1 AND version = $2
	`, workflowID, version)
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.Version{}, apperrors.NotFound("workflow %s has no version %d", workflowID, version)
	}
	if err != nil {
		return workflow.Version{}, err
	}
	return row.toDomain()
}

func (s *Store) ListWorkflowVersions(ctx context.Context, workflowID string) ([]workflow.Version, error) {
	var rows []versionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, workflow_id, version, definition, created_at
		FROM workflow_versions
		WHERE workflow_id = $1
		ORDER BY version
	`, workflowID)
	if err != nil {
		return nil, err
	}
	result := make([]workflow.Version, 0, len(rows))
	for _, row := range rows {
		ver, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		result = append(result, ver)
	}
	return result, nil
}

// --- ExecutionStore ----------------------------------------------------------

func (s *Store) CreateExecution(ctx context.Context, exec workflow.Execution) (workflow.Execution, error) {
	if exec.ID == "" {
		exec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	exec.CreatedAt = now
	exec.UpdatedAt = now

	triggerData, err := marshalTriggerData(exec.TriggerData)
	if err != nil {
		return workflow.Execution{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_executions (id, workflow_id, client_id, status, current_step,
			trigger_data, error_message, wait_until, started_at, completed_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, exec.ID, exec.WorkflowID, nullString(exec.ClientID), string(exec.Status), exec.CurrentStep,
		nullBytes(triggerData), nullString(exec.ErrorMessage), exec.WaitUntil, exec.StartedAt, exec.CompletedAt,
		exec.CreatedAt, exec.UpdatedAt)
	if err != nil {
		return workflow.Execution{}, err
	}
	return exec, nil
}

func (s *Store) UpdateExecution(ctx context.Context, exec workflow.Execution) (workflow.Execution, error) {
	exec.UpdatedAt = time.Now().UTC()

	triggerData, err := marshalTriggerData(exec.TriggerData)
	if err != nil {
		return workflow.Execution{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE workflow_executions
		SET status = $2, current_step = $3, trigger_data = $4, error_message = $5,
			wait_until = $6, started_at = $7, completed_at = $8, updated_at = $9
		WHERE id = $1
	`, exec.ID, string(exec.Status), exec.CurrentStep, nullBytes(triggerData), nullString(exec.ErrorMessage),
		exec.WaitUntil, exec.StartedAt, exec.CompletedAt, exec.UpdatedAt)
	if err != nil {
		return workflow.Execution{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return workflow.Execution{}, apperrors.NotFound("execution %s not found", exec.ID)
	}
	return exec, nil
}

const executionColumns = `id, workflow_id, client_id, status, current_step, trigger_data,
	error_message, wait_until, started_at, completed_at, created_at, updated_at`

func (s *Store) GetExecution(ctx context.Context, id string) (workflow.Execution, error) {
	var row executionRow
	err := s.db.GetContext(ctx, &row, `
		SELECT `+executionColumns+` FROM workflow_executions WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.Execution{}, apperrors.NotFound("execution %s not found", id)
	}
	if err != nil {
		return workflow.Execution{}, err
	}
	return row.toDomain()
}

func (s *Store) ListExecutions(ctx context.Context, workflowID string) ([]workflow.Execution, error) {
	var rows []executionRow
	var err error
	if workflowID == "" {
		err = s.db.SelectContext(ctx, &rows, `
			SELECT `+executionColumns+` FROM workflow_executions ORDER BY created_at, id
		`)
	} else {
		err = s.db.SelectContext(ctx, &rows, `
			SELECT `+executionColumns+` FROM workflow_executions
			WHERE workflow_id = $1 ORDER BY created_at, id
		`, workflowID)
	}
	if err != nil {
		return nil, err
	}
	return executionsFromRows(rows)
}

func (s *Store) ListDueExecutions(ctx context.Context, now time.Time) ([]workflow.Execution, error) {
	var rows []executionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+executionColumns+` FROM workflow_executions
		WHERE status = $1 AND wait_until IS NOT NULL AND wait_until <= $2
		ORDER BY wait_until
	`, string(workflow.StatusRunning), now.UTC())
	if err != nil {
		return nil, err
	}
	return executionsFromRows(rows)
}

func executionsFromRows(rows []executionRow) ([]workflow.Execution, error) {
	result := make([]workflow.Execution, 0, len(rows))
	for _, row := range rows {
		exec, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		result = append(result, exec)
	}
	return result, nil
}

// --- ClientStore -------------------------------------------------------------

type clientRow struct {
	ID         string         `db:"id"`
	FirstName  string         `db:"first_name"`
	LastName   string         `db:"last_name"`
	Email      sql.NullString `db:"email"`
	Phone      sql.NullString `db:"phone"`
	Status     string         `db:"status"`
	AssignedTo sql.NullString `db:"assigned_to"`
	Tags       []byte         `db:"tags"`
	CreatedAt  time.Time      `db:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

func (r clientRow) toDomain() (crm.Client, error) {
	client := crm.Client{
		ID:         r.ID,
		FirstName:  r.FirstName,
		LastName:   r.LastName,
		Email:      r.Email.String,
		Phone:      r.Phone.String,
		Status:     r.Status,
		AssignedTo: r.AssignedTo.String,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if len(r.Tags) > 0 {
		if err := json.Unmarshal(r.Tags, &client.Tags); err != nil {
			return crm.Client{}, fmt.Errorf("decode client tags: %w", err)
		}
	}
	return client, nil
}

func (s *Store) CreateClient(ctx context.Context, client crm.Client) (crm.Client, error) {
	if client.ID == "" {
		client.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	client.CreatedAt = now
	client.UpdatedAt = now

	tags, err := json.Marshal(client.Tags)
	if err != nil {
		return crm.Client{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO clients (id, first_name, last_name, email, phone, status, assigned_to, tags, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, client.ID, client.FirstName, client.LastName, nullString(client.Email), nullString(client.Phone),
		client.Status, nullString(client.AssignedTo), tags, client.CreatedAt, client.UpdatedAt)
	if err != nil {
		return crm.Client{}, err
	}
	return client, nil
}

func (s *Store) UpdateClient(ctx context.Context, client crm.Client) (crm.Client, error) {
	client.UpdatedAt = time.Now().UTC()

	tags, err := json.Marshal(client.Tags)
	if err != nil {
		return crm.Client{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE clients
		SET first_name = $2, last_name = $3, email = $4, phone = $5, status = $6, assigned_to = $7,
			tags = $8, updated_at = $9
		WHERE id = $1
	`, client.ID, client.FirstName, client.LastName, nullString(client.Email), nullString(client.Phone),
		client.Status, nullString(client.AssignedTo), tags, client.UpdatedAt)
	if err != nil {
		return crm.Client{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return crm.Client{}, apperrors.NotFound("client %s not found", client.ID)
	}
	return client, nil
}

func (s *Store) GetClient(ctx context.Context, id string) (crm.Client, error) {
	var row clientRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, first_name, last_name, email, phone, status, assigned_to, tags, created_at, updated_at
		FROM clients WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return crm.Client{}, apperrors.NotFound("client %s not found", id)
	}
	if err != nil {
		return crm.Client{}, err
	}
	return row.toDomain()
}

// --- remaining CRM stores ----------------------------------------------------

func (s *Store) CreateTask(ctx context.Context, task crm.Task) (crm.Task, error) {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, client_id, title, description, priority, assigned_to, due_date, completed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, task.ID, nullString(task.ClientID), task.Title, task.Description, nullString(task.Priority),
		nullString(task.AssignedTo), task.DueDate, task.Completed, task.CreatedAt, task.UpdatedAt)
	if err != nil {
		return crm.Task{}, err
	}
	return task, nil
}

type taskRow struct {
	ID          string         `db:"id"`
	ClientID    sql.NullString `db:"client_id"`
	Title       string         `db:"title"`
	Description string         `db:"description"`
	Priority    sql.NullString `db:"priority"`
	AssignedTo  sql.NullString `db:"assigned_to"`
	DueDate     *time.Time     `db:"due_date"`
	Completed   bool           `db:"completed"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func (r taskRow) toDomain() crm.Task {
	return crm.Task{
		ID:          r.ID,
		ClientID:    r.ClientID.String,
		Title:       r.Title,
		Description: r.Description,
		Priority:    r.Priority.String,
		AssignedTo:  r.AssignedTo.String,
		DueDate:     r.DueDate,
		Completed:   r.Completed,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func (s *Store) GetTask(ctx context.Context, id string) (crm.Task, error) {
	var row taskRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, client_id, title, description, priority, assigned_to, due_date, completed, created_at, updated_at
		FROM tasks WHERE id = $1
	`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return crm.Task{}, apperrors.NotFound("task %s not found", id)
	}
	if err != nil {
		return crm.Task{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) UpdateTask(ctx context.Context, task crm.Task) (crm.Task, error) {
	task.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET title = $2, description = $3, priority = $4, assigned_to = $5, due_date = $6,
			completed = $7, updated_at = $8
		WHERE id = $1
	`, task.ID, task.Title, task.Description, nullString(task.Priority), nullString(task.AssignedTo),
		task.DueDate, task.Completed, task.UpdatedAt)
	if err != nil {
		return crm.Task{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return crm.Task{}, apperrors.NotFound("task %s not found", task.ID)
	}
	return task, nil
}

func (s *Store) ListTasks(ctx context.Context, clientID string) ([]crm.Task, error) {
	var rows []taskRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, client_id, title, description, priority, assigned_to, due_date, completed, created_at, updated_at
		FROM tasks WHERE client_id = $1 ORDER BY created_at, id
	`, clientID)
	if err != nil {
		return nil, err
	}
	result := make([]crm.Task, 0, len(rows))
	for _, row := range rows {
		result = append(result, row.toDomain())
	}
	return result, nil
}

func (s *Store) CreateNote(ctx context.Context, note crm.Note) (crm.Note, error) {
	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	note.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (id, client_id, content, category, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, note.ID, note.ClientID, note.Content, nullString(note.Category), nullString(note.CreatedBy), note.CreatedAt)
	if err != nil {
		return crm.Note{}, err
	}
	return note, nil
}

func (s *Store) ListNotes(ctx context.Context, clientID string) ([]crm.Note, error) {
	type noteRow struct {
		ID        string         `db:"id"`
		ClientID  string         `db:"client_id"`
		Content   string         `db:"content"`
		Category  sql.NullString `db:"category"`
		CreatedBy sql.NullString `db:"created_by"`
		CreatedAt time.Time      `db:"created_at"`
	}
	var rows []noteRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, client_id, content, category, created_by, created_at
		FROM notes WHERE client_id = $1 ORDER BY created_at, id
	`, clientID)
	if err != nil {
		return nil, err
	}
	result := make([]crm.Note, 0, len(rows))
	for _, row := range rows {
		result = append(result, crm.Note{
			ID:        row.ID,
			ClientID:  row.ClientID,
			Content:   row.Content,
			Category:  row.Category.String,
			CreatedBy: row.CreatedBy.String,
			CreatedAt: row.CreatedAt,
		})
	}
	return result, nil
}

func (s *Store) CreateCommunication(ctx context.Context, comm crm.Communication) (crm.Communication, error) {
	if comm.ID == "" {
		comm.ID = uuid.NewString()
	}
	comm.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO communications (id, client_id, channel, recipient, subject, body, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, comm.ID, nullString(comm.ClientID), comm.Channel, comm.To, nullString(comm.Subject), comm.Body,
		comm.Status, comm.CreatedAt)
	if err != nil {
		return crm.Communication{}, err
	}
	return comm, nil
}

func (s *Store) ListCommunications(ctx context.Context, clientID string) ([]crm.Communication, error) {
	type commRow struct {
		ID        string         `db:"id"`
		ClientID  sql.NullString `db:"client_id"`
		Channel   string         `db:"channel"`
		Recipient string         `db:"recipient"`
		Subject   sql.NullString `db:"subject"`
		Body      string         `db:"body"`
		Status    string         `db:"status"`
		CreatedAt time.Time      `db:"created_at"`
	}
	var rows []commRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, client_id, channel, recipient, subject, body, status, created_at
		FROM communications WHERE client_id = $1 ORDER BY created_at, id
	`, clientID)
	if err != nil {
		return nil, err
	}
	result := make([]crm.Communication, 0, len(rows))
	for _, row := range rows {
		result = append(result, crm.Communication{
			ID:        row.ID,
			ClientID:  row.ClientID.String,
			Channel:   row.Channel,
			To:        row.Recipient,
			Subject:   row.Subject.String,
			Body:      row.Body,
			Status:    row.Status,
			CreatedAt: row.CreatedAt,
		})
	}
	return result, nil
}

func (s *Store) CreateNotification(ctx context.Context, note crm.Notification) (crm.Notification, error) {
	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	note.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, title, message, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, note.ID, note.UserID, note.Title, nullString(note.Message), note.Read, note.CreatedAt)
	if err != nil {
		return crm.Notification{}, err
	}
	return note, nil
}

func (s *Store) ListNotifications(ctx context.Context, userID string) ([]crm.Notification, error) {
	type notifRow struct {
		ID        string         `db:"id"`
		UserID    string         `db:"user_id"`
		Title     string         `db:"title"`
		Message   sql.NullString `db:"message"`
		Read      bool           `db:"read"`
		CreatedAt time.Time      `db:"created_at"`
	}
	var rows []notifRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, title, message, read, created_at
		FROM notifications WHERE user_id = $1 ORDER BY created_at, id
	`, userID)
	if err != nil {
		return nil, err
	}
	result := make([]crm.Notification, 0, len(rows))
	for _, row := range rows {
		result = append(result, crm.Notification{
			ID:        row.ID,
			UserID:    row.UserID,
			Title:     row.Title,
			Message:   row.Message.String,
			Read:      row.Read,
			CreatedAt: row.CreatedAt,
		})
	}
	return result, nil
}

func (s *Store) CreateDocumentRequest(ctx context.Context, req crm.DocumentRequest) (crm.DocumentRequest, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	req.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO document_requests (id, client_id, document_type, message, fulfilled, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, req.ID, req.ClientID, req.DocumentType, nullString(req.Message), req.Fulfilled, req.CreatedAt)
	if err != nil {
		return crm.DocumentRequest{}, err
	}
	return req, nil
}

func (s *Store) UpdateDocumentRequest(ctx context.Context, req crm.DocumentRequest) (crm.DocumentRequest, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE document_requests
		SET document_type = $2, message = $3, fulfilled = $4
		WHERE id = $1
	`, req.ID, req.DocumentType, nullString(req.Message), req.Fulfilled)
	if err != nil {
		return crm.DocumentRequest{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return crm.DocumentRequest{}, apperrors.NotFound("document request %s not found", req.ID)
	}
	return req, nil
}

func (s *Store) ListDocumentRequests(ctx context.Context, clientID string) ([]crm.DocumentRequest, error) {
	type reqRow struct {
		ID           string         `db:"id"`
		ClientID     string         `db:"client_id"`
		DocumentType string         `db:"document_type"`
		Message      sql.NullString `db:"message"`
		Fulfilled    bool           `db:"fulfilled"`
		CreatedAt    time.Time      `db:"created_at"`
	}
	var rows []reqRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, client_id, document_type, message, fulfilled, created_at
		FROM document_requests WHERE client_id = $1 ORDER BY created_at, id
	`, clientID)
	if err != nil {
		return nil, err
	}
	result := make([]crm.DocumentRequest, 0, len(rows))
	for _, row := range rows {
		result = append(result, crm.DocumentRequest{
			ID:           row.ID,
			ClientID:     row.ClientID,
			DocumentType: row.DocumentType,
			Message:      row.Message.String,
			Fulfilled:    row.Fulfilled,
			CreatedAt:    row.CreatedAt,
		})
	}
	return result, nil
}

// --- helpers -----------------------------------------------------------------

func marshalTriggerData(data map[string]interface{}) ([]byte, error) {
	if data == nil {
		return nil, nil
	}
	return json.Marshal(data)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
