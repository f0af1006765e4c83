package workflow

// ActionType is the closed vocabulary of side-effecting workflow steps.
type ActionType string

const (
	ActionSendEmail          ActionType = "SEND_EMAIL"
	ActionSendSMS            ActionType = "SEND_SMS"
	ActionCreateTask         ActionType = "CREATE_TASK"
	ActionUpdateClientStatus ActionType = "UPDATE_CLIENT_STATUS"
	ActionAddTag             ActionType = "ADD_TAG"
	ActionRemoveTag          ActionType = "REMOVE_TAG"
	ActionAssignClient       ActionType = "ASSIGN_CLIENT"
	ActionRequestDocument    ActionType = "REQUEST_DOCUMENT"
	ActionAddNote            ActionType = "ADD_NOTE"
	ActionSendNotification   ActionType = "SEND_NOTIFICATION"
	ActionCallWebhook        ActionType = "CALL_WEBHOOK"
	ActionWait               ActionType = "WAIT"
)

// ActionTypes lists every valid action type.
func ActionTypes() []ActionType {
	return []ActionType{
		ActionSendEmail,
		ActionSendSMS,
		ActionCreateTask,
		ActionUpdateClientStatus,
		ActionAddTag,
		ActionRemoveTag,
		ActionAssignClient,
		ActionRequestDocument,
		ActionAddNote,
		ActionSendNotification,
		ActionCallWebhook,
		ActionWait,
	}
}

// ValidActionType reports whether t is part of the closed vocabulary.
func ValidActionType(t ActionType) bool {
	for _, known := range ActionTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// ActionConfig carries the type-specific payload of one action. Only the
// fields belonging to the action's type are consulted; validation at save
// time enforces the per-type shape.
type ActionConfig struct {
	// SEND_EMAIL / SEND_SMS
	To           string `json:"to,omitempty"`
	Subject      string `json:"subject,omitempty"`
	BodyTemplate string `json:"bodyTemplate,omitempty"`

	// CREATE_TASK
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority,omitempty"`
	AssignedTo  string `json:"assignedTo,omitempty"`
	DueInDays   int    `json:"dueInDays,omitempty"`

	// UPDATE_CLIENT_STATUS
	Status string `json:"status,omitempty"`

	// ADD_TAG / REMOVE_TAG
	Tag string `json:"tag,omitempty"`

	// ASSIGN_CLIENT / SEND_NOTIFICATION target
	UserID string `json:"userId,omitempty"`

	// REQUEST_DOCUMENT
	DocumentType string `json:"documentType,omitempty"`
	Message      string `json:"message,omitempty"`

	// ADD_NOTE
	Content  string `json:"content,omitempty"`
	Category string `json:"category,omitempty"`

	// CALL_WEBHOOK
	URL               string            `json:"url,omitempty"`
	Method            string            `json:"method,omitempty"`
	Headers           map[string]string `json:"headers,omitempty"`
	RetryOnFailure    bool              `json:"retryOnFailure,omitempty"`
	MaxRetries        int               `json:"maxRetries,omitempty"`
	RetryDelaySeconds int               `json:"retryDelaySeconds,omitempty"`
	TimeoutSeconds    int               `json:"timeoutSeconds,omitempty"`

	// WAIT
	DurationSeconds int `json:"durationSeconds,omitempty"`
}

// Action is one ordered, typed step in a workflow's execution list. A step
// may carry its own condition gating just that step.
type Action struct {
	Type      ActionType   `json:"type"`
	Config    ActionConfig `json:"config"`
	Condition *Condition   `json:"condition,omitempty"`
}
