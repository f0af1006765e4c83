package workflows

import (
	"context"
	"fmt"
	"time"

	"github.com/flowdesk/automation_layer/internal/app/domain/crm"
	"github.com/flowdesk/automation_layer/internal/app/domain/workflow"
	"github.com/flowdesk/automation_layer/internal/app/storage"
	"github.com/flowdesk/automation_layer/pkg/logger"
)

// ActionResult is the outcome of one action handler invocation.
type ActionResult struct {
	Success bool
	Output  string
	Err     error
	// WaitFor parks the execution for the given duration (WAIT actions).
	WaitFor time.Duration
}

func success(output string) ActionResult {
	return ActionResult{Success: true, Output: output}
}

func failure(err error) ActionResult {
	return ActionResult{Err: err}
}

// RunContext is the per-execution state handed to action handlers.
type RunContext struct {
	Workflow  workflow.Workflow
	Execution *workflow.Execution
	Client    *crm.Client
	Eval      EvalContext
}

// Handler executes one action kind against the current context.
type Handler interface {
	Execute(ctx context.Context, action workflow.Action, run *RunContext) ActionResult
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, action workflow.Action, run *RunContext) ActionResult

func (f HandlerFunc) Execute(ctx context.Context, action workflow.Action, run *RunContext) ActionResult {
	return f(ctx, action, run)
}

// ExecutorStores bundles the entity-mutation collaborators action handlers
// write through.
type ExecutorStores struct {
	Clients          storage.ClientStore
	Tasks            storage.TaskStore
	Notes            storage.NoteStore
	Communications   storage.CommunicationStore
	Notifications    storage.NotificationStore
	DocumentRequests storage.DocumentRequestStore
}

// Executor dispatches typed actions through a handler registry. Adding an
// action kind is registering a handler, not editing a dispatch chain.
type Executor struct {
	stores   ExecutorStores
	caller   *WebhookCaller
	handlers map[workflow.ActionType]Handler
	log      *logger.Logger
}

// NewExecutor builds an executor with the default handler set registered.
func NewExecutor(stores ExecutorStores, caller *WebhookCaller, log *logger.Logger) *Executor {
	if log == nil {
		log = logger.NewDefault("workflow-executor")
	}
	e := &Executor{
		stores:   stores,
		caller:   caller,
		handlers: make(map[workflow.ActionType]Handler),
		log:      log,
	}
	e.Register(workflow.ActionSendEmail, HandlerFunc(e.sendEmail))
	e.Register(workflow.ActionSendSMS, HandlerFunc(e.sendSMS))
	e.Register(workflow.ActionCreateTask, HandlerFunc(e.createTask))
	e.Register(workflow.ActionUpdateClientStatus, HandlerFunc(e.updateClientStatus))
	e.Register(workflow.ActionAddTag, HandlerFunc(e.addTag))
	e.Register(workflow.ActionRemoveTag, HandlerFunc(e.removeTag))
	e.Register(workflow.ActionAssignClient, HandlerFunc(e.assignClient))
	e.Register(workflow.ActionRequestDocument, HandlerFunc(e.requestDocument))
	e.Register(workflow.ActionAddNote, HandlerFunc(e.addNote))
	e.Register(workflow.ActionSendNotification, HandlerFunc(e.sendNotification))
	e.Register(workflow.ActionCallWebhook, HandlerFunc(e.callWebhook))
	e.Register(workflow.ActionWait, HandlerFunc(e.wait))
	return e
}

// Register installs a handler for an action type, replacing any existing one.
func (e *Executor) Register(t workflow.ActionType, h Handler) {
	e.handlers[t] = h
}

// Execute dispatches one action. Unregistered types produce a failed result
// rather than a panic; save-time validation makes that unreachable for
// definitions written through the service.
func (e *Executor) Execute(ctx context.Context, action workflow.Action, run *RunContext) ActionResult {
	h, ok := e.handlers[action.Type]
	if !ok {
		return failure(fmt.Errorf("no handler for action type %s", action.Type))
	}
	return h.Execute(ctx, action, run)
}

// Describe computes the intended effect of an action without executing it,
// used by dry runs. Templates are rendered so the preview matches what a
// live run would send.
func (e *Executor) Describe(action workflow.Action, run *RunContext) string {
	cfg := action.Config
	switch action.Type {
	case workflow.ActionSendEmail:
		return fmt.Sprintf("queue email to %q subject %q", e.emailRecipient(cfg, run), run.Eval.Render(cfg.Subject))
	case workflow.ActionSendSMS:
		return fmt.Sprintf("queue sms to %q", e.smsRecipient(cfg, run))
	case workflow.ActionCreateTask:
		return fmt.Sprintf("create task %q", run.Eval.Render(cfg.Title))
	case workflow.ActionUpdateClientStatus:
		return fmt.Sprintf("update client status to %q", cfg.Status)
	case workflow.ActionAddTag:
		return fmt.Sprintf("add tag %q", cfg.Tag)
	case workflow.ActionRemoveTag:
		return fmt.Sprintf("remove tag %q", cfg.Tag)
	case workflow.ActionAssignClient:
		return fmt.Sprintf("assign client to %q", cfg.UserID)
	case workflow.ActionRequestDocument:
		return fmt.Sprintf("request document %q", cfg.DocumentType)
	case workflow.ActionAddNote:
		return fmt.Sprintf("add note %q", run.Eval.Render(cfg.Content))
	case workflow.ActionSendNotification:
		return fmt.Sprintf("notify user %q: %s", cfg.UserID, run.Eval.Render(cfg.Title))
	case workflow.ActionCallWebhook:
		return fmt.Sprintf("call %s %s", webhookMethod(cfg), cfg.URL)
	case workflow.ActionWait:
		return fmt.Sprintf("wait %ds", cfg.DurationSeconds)
	default:
		return fmt.Sprintf("unknown action %s", action.Type)
	}
}

// --- handlers ----------------------------------------------------------------

func (e *Executor) emailRecipient(cfg workflow.ActionConfig, run *RunContext) string {
	if cfg.To != "" {
		return run.Eval.Render(cfg.To)
	}
	if run.Client != nil {
		return run.Client.Email
	}
	return ""
}

func (e *Executor) smsRecipient(cfg workflow.ActionConfig, run *RunContext) string {
	if cfg.To != "" {
		return run.Eval.Render(cfg.To)
	}
	if run.Client != nil {
		return run.Client.Phone
	}
	return ""
}

func (e *Executor) sendEmail(ctx context.Context, action workflow.Action, run *RunContext) ActionResult {
	to := e.emailRecipient(action.Config, run)
	if to == "" {
		return failure(fmt.Errorf("send_email: no recipient available"))
	}
	comm := crm.Communication{
		ClientID: run.Execution.ClientID,
		Channel:  crm.ChannelEmail,
		To:       to,
		Subject:  run.Eval.Render(action.Config.Subject),
		Body:     run.Eval.Render(action.Config.BodyTemplate),
		Status:   crm.CommunicationQueued,
	}
	created, err := e.stores.Communications.CreateCommunication(ctx, comm)
	if err != nil {
		return failure(fmt.Errorf("send_email: %w", err))
	}
	return success(fmt.Sprintf("queued email %s to %s", created.ID, to))
}

func (e *Executor) sendSMS(ctx context.Context, action workflow.Action, run *RunContext) ActionResult {
	to := e.smsRecipient(action.Config, run)
	if to == "" {
		return failure(fmt.Errorf("send_sms: no recipient available"))
	}
	comm := crm.Communication{
		ClientID: run.Execution.ClientID,
		Channel:  crm.ChannelSMS,
		To:       to,
		Body:     run.Eval.Render(action.Config.BodyTemplate),
		Status:   crm.CommunicationQueued,
	}
	created, err := e.stores.Communications.CreateCommunication(ctx, comm)
	if err != nil {
		return failure(fmt.Errorf("send_sms: %w", err))
	}
	return success(fmt.Sprintf("queued sms %s to %s", created.ID, to))
}

func (e *Executor) createTask(ctx context.Context, action workflow.Action, run *RunContext) ActionResult {
	cfg := action.Config
	task := crm.Task{
		ClientID:    run.Execution.ClientID,
		Title:       run.Eval.Render(cfg.Title),
		Description: run.Eval.Render(cfg.Description),
		Priority:    cfg.Priority,
		AssignedTo:  cfg.AssignedTo,
	}
	if cfg.DueInDays > 0 {
		due := time.Now().UTC().AddDate(0, 0, cfg.DueInDays)
		task.DueDate = &due
	}
	created, err := e.stores.Tasks.CreateTask(ctx, task)
	if err != nil {
		return failure(fmt.Errorf("create_task: %w", err))
	}
	return success(fmt.Sprintf("created task %s", created.ID))
}

func setClient(run *RunContext, client crm.Client) {
	if run.Client != nil {
		*run.Client = client
		return
	}
	run.Client = &client
}

func (e *Executor) requireClient(ctx context.Context, run *RunContext) (crm.Client, error) {
	if run.Execution.ClientID == "" {
		return crm.Client{}, fmt.Errorf("execution has no client context")
	}
	if run.Client != nil {
		return *run.Client, nil
	}
	return e.stores.Clients.GetClient(ctx, run.Execution.ClientID)
}

func (e *Executor) updateClientStatus(ctx context.Context, action workflow.Action, run *RunContext) ActionResult {
	client, err := e.requireClient(ctx, run)
	if err != nil {
		return failure(fmt.Errorf("update_client_status: %w", err))
	}
	client.Status = action.Config.Status
	updated, err := e.stores.Clients.UpdateClient(ctx, client)
	if err != nil {
		return failure(fmt.Errorf("update_client_status: %w", err))
	}
	setClient(run, updated)
	return success(fmt.Sprintf("client status set to %s", updated.Status))
}

func (e *Executor) addTag(ctx context.Context, action workflow.Action, run *RunContext) ActionResult {
	client, err := e.requireClient(ctx, run)
	if err != nil {
		return failure(fmt.Errorf("add_tag: %w", err))
	}
	for _, tag := range client.Tags {
		if tag == action.Config.Tag {
			return success("tag already present")
		}
	}
	client.Tags = append(client.Tags, action.Config.Tag)
	updated, err := e.stores.Clients.UpdateClient(ctx, client)
	if err != nil {
		return failure(fmt.Errorf("add_tag: %w", err))
	}
	setClient(run, updated)
	return success(fmt.Sprintf("added tag %s", action.Config.Tag))
}

func (e *Executor) removeTag(ctx context.Context, action workflow.Action, run *RunContext) ActionResult {
	client, err := e.requireClient(ctx, run)
	if err != nil {
		return failure(fmt.Errorf("remove_tag: %w", err))
	}
	// Filter into a fresh slice; the loaded Tags may share a backing array
	// with the run context's client.
	kept := make([]string, 0, len(client.Tags))
	for _, tag := range client.Tags {
		if tag != action.Config.Tag {
			kept = append(kept, tag)
		}
	}
	client.Tags = kept
	updated, err := e.stores.Clients.UpdateClient(ctx, client)
	if err != nil {
		return failure(fmt.Errorf("remove_tag: %w", err))
	}
	setClient(run, updated)
	return success(fmt.Sprintf("removed tag %s", action.Config.Tag))
}

func (e *Executor) assignClient(ctx context.Context, action workflow.Action, run *RunContext) ActionResult {
	client, err := e.requireClient(ctx, run)
	if err != nil {
		return failure(fmt.Errorf("assign_client: %w", err))
	}
	client.AssignedTo = action.Config.UserID
	updated, err := e.stores.Clients.UpdateClient(ctx, client)
	if err != nil {
		return failure(fmt.Errorf("assign_client: %w", err))
	}
	setClient(run, updated)
	return success(fmt.Sprintf("client assigned to %s", action.Config.UserID))
}

func (e *Executor) requestDocument(ctx context.Context, action workflow.Action, run *RunContext) ActionResult {
	if run.Execution.ClientID == "" {
		return failure(fmt.Errorf("request_document: execution has no client context"))
	}
	req := crm.DocumentRequest{
		ClientID:     run.Execution.ClientID,
		DocumentType: action.Config.DocumentType,
		Message:      run.Eval.Render(action.Config.Message),
	}
	created, err := e.stores.DocumentRequests.CreateDocumentRequest(ctx, req)
	if err != nil {
		return failure(fmt.Errorf("request_document: %w", err))
	}
	return success(fmt.Sprintf("requested document %s (%s)", action.Config.DocumentType, created.ID))
}

func (e *Executor) addNote(ctx context.Context, action workflow.Action, run *RunContext) ActionResult {
	if run.Execution.ClientID == "" {
		return failure(fmt.Errorf("add_note: execution has no client context"))
	}
	note := crm.Note{
		ClientID:  run.Execution.ClientID,
		Content:   run.Eval.Render(action.Config.Content),
		Category:  action.Config.Category,
		CreatedBy: "workflow:" + run.Workflow.ID,
	}
	created, err := e.stores.Notes.CreateNote(ctx, note)
	if err != nil {
		return failure(fmt.Errorf("add_note: %w", err))
	}
	return success(fmt.Sprintf("added note %s", created.ID))
}

func (e *Executor) sendNotification(ctx context.Context, action workflow.Action, run *RunContext) ActionResult {
	notif := crm.Notification{
		UserID:  action.Config.UserID,
		Title:   run.Eval.Render(action.Config.Title),
		Message: run.Eval.Render(action.Config.Message),
	}
	created, err := e.stores.Notifications.CreateNotification(ctx, notif)
	if err != nil {
		return failure(fmt.Errorf("send_notification: %w", err))
	}
	return success(fmt.Sprintf("notified user %s (%s)", action.Config.UserID, created.ID))
}

func (e *Executor) callWebhook(ctx context.Context, action workflow.Action, run *RunContext) ActionResult {
	if e.caller == nil {
		return failure(fmt.Errorf("call_webhook: no caller configured"))
	}
	return e.caller.Call(ctx, action.Config, run.Eval)
}

func (e *Executor) wait(_ context.Context, action workflow.Action, _ *RunContext) ActionResult {
	duration := time.Duration(action.Config.DurationSeconds) * time.Second
	if duration <= 0 {
		return success("wait skipped: zero duration")
	}
	return ActionResult{Success: true, Output: fmt.Sprintf("waiting %s", duration), WaitFor: duration}
}
