package workflows

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/flowdesk/automation_layer/internal/app/domain/workflow"
	"github.com/flowdesk/automation_layer/internal/app/storage"
	"github.com/flowdesk/automation_layer/internal/app/system"
	"github.com/flowdesk/automation_layer/pkg/logger"
)

const (
	defaultWakeInterval   = 5 * time.Second
	defaultResyncInterval = 30 * time.Second
)

type cronEntry struct {
	id   cron.EntryID
	spec string
}

// Runner is the background half of the engine: it wakes executions whose
// WAIT has elapsed and fires SCHEDULED workflows on their cron expressions.
type Runner struct {
	workflows  storage.WorkflowStore
	executions storage.ExecutionStore
	orch       *Orchestrator

	wakeInterval   time.Duration
	resyncInterval time.Duration

	cron    *cron.Cron
	mu      sync.Mutex
	entries map[string]cronEntry

	stop chan struct{}
	done chan struct{}
	log  *logger.Logger
}

// NewRunner builds a runner. Intervals of zero take the defaults.
func NewRunner(workflows storage.WorkflowStore, executions storage.ExecutionStore, orch *Orchestrator, wakeInterval time.Duration, log *logger.Logger) *Runner {
	if log == nil {
		log = logger.NewDefault("workflow-runner")
	}
	if wakeInterval <= 0 {
		wakeInterval = defaultWakeInterval
	}
	return &Runner{
		workflows:      workflows,
		executions:     executions,
		orch:           orch,
		wakeInterval:   wakeInterval,
		resyncInterval: defaultResyncInterval,
		cron:           cron.New(),
		entries:        make(map[string]cronEntry),
		log:            log,
	}
}

var _ system.Service = (*Runner)(nil)

// Name identifies the runner to the lifecycle manager.
func (r *Runner) Name() string { return "workflow-runner" }

// Start launches the wake loop and the cron scheduler.
func (r *Runner) Start(ctx context.Context) error {
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	if err := r.resyncSchedules(ctx); err != nil {
		r.log.WithError(err).Warn("Initial schedule sync failed, will retry")
	}
	r.cron.Start()
	go r.loop()
	r.log.WithField("wake_interval", r.wakeInterval.String()).Info("Workflow runner started")
	return nil
}

// Stop halts the cron scheduler and waits for the wake loop to exit.
func (r *Runner) Stop(ctx context.Context) error {
	close(r.stop)
	cronCtx := r.cron.Stop()
	select {
	case <-r.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-cronCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (r *Runner) loop() {
	defer close(r.done)
	wake := time.NewTicker(r.wakeInterval)
	defer wake.Stop()
	resync := time.NewTicker(r.resyncInterval)
	defer resync.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-wake.C:
			r.wakeDue()
		case <-resync.C:
			if err := r.resyncSchedules(context.Background()); err != nil {
				r.log.WithError(err).Warn("Schedule sync failed")
			}
		}
	}
}

// wakeDue resumes executions parked on an elapsed WAIT.
func (r *Runner) wakeDue() {
	ctx := context.Background()
	due, err := r.executions.ListDueExecutions(ctx, time.Now().UTC())
	if err != nil {
		r.log.WithError(err).Error("Failed to list due executions")
		return
	}
	for _, exec := range due {
		if _, err := r.orch.Run(ctx, exec.ID); err != nil {
			r.log.WithField("execution_id", exec.ID).WithError(err).Error("Failed to wake execution")
		}
	}
}

// resyncSchedules reconciles cron entries with the active SCHEDULED
// workflows. Changed cron expressions are re-registered; deactivated or
// deleted workflows are dropped.
func (r *Runner) resyncSchedules(ctx context.Context) error {
	active, err := r.workflows.ListActiveWorkflowsByTrigger(ctx, workflow.TriggerScheduled)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	want := make(map[string]string, len(active))
	for _, wf := range active {
		want[wf.ID] = wf.TriggerConfig.Cron
	}

	for id, entry := range r.entries {
		if spec, ok := want[id]; !ok || spec != entry.spec {
			r.cron.Remove(entry.id)
			delete(r.entries, id)
		}
	}

	for _, wf := range active {
		if _, ok := r.entries[wf.ID]; ok {
			continue
		}
		wf := wf
		entryID, err := r.cron.AddFunc(wf.TriggerConfig.Cron, func() { r.fireScheduled(wf.ID) })
		if err != nil {
			r.log.WithField("workflow_id", wf.ID).WithError(err).Error("Failed to schedule workflow")
			continue
		}
		r.entries[wf.ID] = cronEntry{id: entryID, spec: wf.TriggerConfig.Cron}
	}
	return nil
}

func (r *Runner) fireScheduled(workflowID string) {
	ctx := context.Background()
	wf, err := r.workflows.GetWorkflow(ctx, workflowID)
	if err != nil || !wf.IsActive {
		return
	}
	exec, err := r.orch.CreateExecution(ctx, wf, "", map[string]interface{}{
		"triggerType": string(workflow.TriggerScheduled),
		"firedAt":     time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		r.log.WithField("workflow_id", workflowID).WithError(err).Error("Failed to create scheduled execution")
		return
	}
	if _, err := r.orch.Run(ctx, exec.ID); err != nil {
		r.log.WithField("workflow_id", workflowID).WithError(err).Error("Scheduled execution errored")
	}
}
