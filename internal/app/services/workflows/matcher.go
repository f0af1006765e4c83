package workflows

import (
	"context"

	"github.com/flowdesk/automation_layer/internal/app/domain/workflow"
	"github.com/flowdesk/automation_layer/internal/app/storage"
	"github.com/flowdesk/automation_layer/pkg/logger"
)

// Matcher selects the active workflows whose trigger type and trigger-config
// filters match a raw domain event.
type Matcher struct {
	store storage.WorkflowStore
	log   *logger.Logger
}

// NewMatcher constructs a trigger matcher.
func NewMatcher(store storage.WorkflowStore, log *logger.Logger) *Matcher {
	if log == nil {
		log = logger.NewDefault("workflow-matcher")
	}
	return &Matcher{store: store, log: log}
}

// Match returns the candidate workflows for an event. For WEBHOOK events the
// single target workflow has already been resolved by id, so this step is a
// pass-through used only by the non-webhook trigger paths.
func (m *Matcher) Match(ctx context.Context, event workflow.Event) ([]workflow.Workflow, error) {
	candidates, err := m.store.ListActiveWorkflowsByTrigger(ctx, event.Type)
	if err != nil {
		return nil, err
	}

	matched := make([]workflow.Workflow, 0, len(candidates))
	for _, wf := range candidates {
		if ConfigMatches(wf.TriggerType, wf.TriggerConfig, event) {
			matched = append(matched, wf)
		}
	}
	if len(matched) > 0 {
		m.log.WithField("trigger_type", string(event.Type)).
			WithField("matched", len(matched)).
			Debug("trigger matched workflows")
	}
	return matched, nil
}

// ConfigMatches checks a workflow's trigger-config filters against the event.
// An unset config field is a wildcard: it matches any event value.
func ConfigMatches(t workflow.TriggerType, cfg workflow.TriggerConfig, event workflow.Event) bool {
	switch t {
	case workflow.TriggerClientCreated:
		return wildcardEqual(cfg.Status, event.Status)
	case workflow.TriggerClientStatusChanged:
		return wildcardEqual(cfg.FromStatus, event.FromStatus) && wildcardEqual(cfg.ToStatus, event.ToStatus)
	case workflow.TriggerClientAssigned:
		return wildcardEqual(cfg.AssignedTo, event.AssignedTo)
	case workflow.TriggerDocumentUploaded:
		return wildcardEqual(cfg.DocumentType, event.DocumentType)
	case workflow.TriggerTaskCompleted:
		return wildcardEqual(cfg.Priority, event.Priority)
	case workflow.TriggerNoteAdded:
		return wildcardEqual(cfg.Category, event.Category)
	case workflow.TriggerTagAdded:
		return wildcardEqual(cfg.Tag, event.Tag)
	case workflow.TriggerScheduled, workflow.TriggerWebhook, workflow.TriggerManual:
		// Resolved by schedule or by id; no event-side filter.
		return true
	default:
		return false
	}
}

func wildcardEqual(configured, actual string) bool {
	return configured == "" || configured == actual
}
