package workflows

import (
	"github.com/robfig/cron/v3"

	apperrors "github.com/flowdesk/automation_layer/internal/errors"

	"github.com/flowdesk/automation_layer/internal/app/domain/workflow"
)

// ValidateWorkflow enforces the save-time contract: a known trigger type
// with its required config, a well-formed condition tree, and a non-empty
// action list where every action carries its required config. Runtime never
// re-checks these, so nothing malformed may get past here.
func ValidateWorkflow(wf workflow.Workflow) error {
	if wf.Name == "" {
		return apperrors.Validation("workflow name is required")
	}
	if !workflow.ValidTriggerType(wf.TriggerType) {
		return apperrors.Validation("unknown trigger type %q", wf.TriggerType)
	}
	if err := validateTriggerConfig(wf.TriggerType, wf.TriggerConfig); err != nil {
		return err
	}
	if err := validateCondition(wf.Conditions); err != nil {
		return err
	}
	if len(wf.Actions) == 0 {
		return apperrors.Validation("workflow must have at least one action")
	}
	for i, action := range wf.Actions {
		if err := validateAction(i, action); err != nil {
			return err
		}
	}
	return nil
}

func validateTriggerConfig(t workflow.TriggerType, cfg workflow.TriggerConfig) error {
	switch t {
	case workflow.TriggerScheduled:
		if cfg.Cron == "" {
			return apperrors.Validation("SCHEDULED trigger requires a cron expression")
		}
		if _, err := cron.ParseStandard(cfg.Cron); err != nil {
			return apperrors.Validation("invalid cron expression %q: %v", cfg.Cron, err)
		}
	case workflow.TriggerWebhook:
		if cfg.Secret == "" {
			return apperrors.Validation("WEBHOOK trigger requires a secret")
		}
	}
	return nil
}

func validateCondition(cond *workflow.Condition) error {
	if cond == nil {
		return nil
	}
	if cond.All != nil && cond.Any != nil {
		return apperrors.Validation("condition cannot combine all and any in one node")
	}
	if cond.IsComposite() {
		if cond.Field != "" || cond.Operator != "" {
			return apperrors.Validation("composite condition cannot carry field or operator")
		}
		for i := range cond.All {
			if err := validateCondition(&cond.All[i]); err != nil {
				return err
			}
		}
		for i := range cond.Any {
			if err := validateCondition(&cond.Any[i]); err != nil {
				return err
			}
		}
		return nil
	}
	if cond.Field == "" {
		return apperrors.Validation("condition field is required")
	}
	if !workflow.ValidOperator(cond.Operator) {
		return apperrors.Validation("unknown condition operator %q", cond.Operator)
	}
	if cond.Operator != workflow.OpExists && cond.Value == nil {
		return apperrors.Validation("condition on %q requires a value for operator %s", cond.Field, cond.Operator)
	}
	return nil
}

func validateAction(index int, action workflow.Action) error {
	if !workflow.ValidActionType(action.Type) {
		return apperrors.Validation("action %d: unknown action type %q", index, action.Type)
	}
	if err := validateCondition(action.Condition); err != nil {
		return err
	}
	cfg := action.Config
	switch action.Type {
	case workflow.ActionSendEmail:
		if cfg.Subject == "" || cfg.BodyTemplate == "" {
			return apperrors.Validation("action %d: SEND_EMAIL requires subject and bodyTemplate", index)
		}
	case workflow.ActionSendSMS:
		if cfg.BodyTemplate == "" {
			return apperrors.Validation("action %d: SEND_SMS requires bodyTemplate", index)
		}
	case workflow.ActionCreateTask:
		if cfg.Title == "" {
			return apperrors.Validation("action %d: CREATE_TASK requires title", index)
		}
	case workflow.ActionUpdateClientStatus:
		if cfg.Status == "" {
			return apperrors.Validation("action %d: UPDATE_CLIENT_STATUS requires status", index)
		}
	case workflow.ActionAddTag, workflow.ActionRemoveTag:
		if cfg.Tag == "" {
			return apperrors.Validation("action %d: %s requires tag", index, action.Type)
		}
	case workflow.ActionAssignClient:
		if cfg.UserID == "" {
			return apperrors.Validation("action %d: ASSIGN_CLIENT requires userId", index)
		}
	case workflow.ActionRequestDocument:
		if cfg.DocumentType == "" {
			return apperrors.Validation("action %d: REQUEST_DOCUMENT requires documentType", index)
		}
	case workflow.ActionAddNote:
		if cfg.Content == "" {
			return apperrors.Validation("action %d: ADD_NOTE requires content", index)
		}
	case workflow.ActionSendNotification:
		if cfg.UserID == "" || cfg.Title == "" {
			return apperrors.Validation("action %d: SEND_NOTIFICATION requires userId and title", index)
		}
	case workflow.ActionCallWebhook:
		if cfg.URL == "" {
			return apperrors.Validation("action %d: CALL_WEBHOOK requires url", index)
		}
	case workflow.ActionWait:
		if cfg.DurationSeconds <= 0 {
			return apperrors.Validation("action %d: WAIT requires a positive durationSeconds", index)
		}
	}
	return nil
}
