package workflow

// ConfigField describes one configurable field of a trigger or action type,
// consumed by workflow-builder UIs through the catalog endpoints.
type ConfigField struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description,omitempty"`
}

// TriggerTypeInfo is one catalog entry for a trigger type.
type TriggerTypeInfo struct {
	Type        TriggerType   `json:"type"`
	Description string        `json:"description"`
	Fields      []ConfigField `json:"configFields"`
}

// ActionTypeInfo is one catalog entry for an action type.
type ActionTypeInfo struct {
	Type        ActionType    `json:"type"`
	Description string        `json:"description"`
	Fields      []ConfigField `json:"configFields"`
}

// TriggerCatalog enumerates the trigger vocabulary with each type's
// configurable filter fields. The shapes are part of the public contract.
func TriggerCatalog() []TriggerTypeInfo {
	return []TriggerTypeInfo{
		{Type: TriggerClientCreated, Description: "A client record was created", Fields: []ConfigField{
			{Name: "status", Type: "string", Description: "only fire for clients created in this status"},
		}},
		{Type: TriggerClientStatusChanged, Description: "A client's status changed", Fields: []ConfigField{
			{Name: "fromStatus", Type: "string", Description: "only fire when leaving this status"},
			{Name: "toStatus", Type: "string", Description: "only fire when entering this status"},
		}},
		{Type: TriggerClientAssigned, Description: "A client was assigned to a user", Fields: []ConfigField{
			{Name: "assignedTo", Type: "string", Description: "only fire for this assignee"},
		}},
		{Type: TriggerDocumentUploaded, Description: "A document was uploaded for a client", Fields: []ConfigField{
			{Name: "documentType", Type: "string", Description: "only fire for this document type"},
		}},
		{Type: TriggerTaskCompleted, Description: "A task was completed", Fields: []ConfigField{
			{Name: "priority", Type: "string", Description: "only fire for tasks of this priority"},
		}},
		{Type: TriggerNoteAdded, Description: "A note was added to a client", Fields: []ConfigField{
			{Name: "category", Type: "string", Description: "only fire for notes in this category"},
		}},
		{Type: TriggerTagAdded, Description: "A tag was added to a client", Fields: []ConfigField{
			{Name: "tag", Type: "string", Description: "only fire for this tag"},
		}},
		{Type: TriggerScheduled, Description: "A cron schedule fired", Fields: []ConfigField{
			{Name: "cron", Type: "string", Required: true, Description: "cron expression"},
		}},
		{Type: TriggerWebhook, Description: "An authenticated inbound webhook", Fields: []ConfigField{
			{Name: "secret", Type: "string", Required: true, Description: "HMAC signing secret"},
		}},
		{Type: TriggerManual, Description: "Fired explicitly by an operator"},
	}
}

// ActionCatalog enumerates the action vocabulary with each type's required
// config shape.
func ActionCatalog() []ActionTypeInfo {
	return []ActionTypeInfo{
		{Type: ActionSendEmail, Description: "Queue an email to the client or a fixed address", Fields: []ConfigField{
			{Name: "to", Type: "string", Description: "recipient; defaults to the client's email"},
			{Name: "subject", Type: "string", Required: true},
			{Name: "bodyTemplate", Type: "string", Required: true, Description: "supports {{path}} placeholders"},
		}},
		{Type: ActionSendSMS, Description: "Queue an SMS to the client or a fixed number", Fields: []ConfigField{
			{Name: "to", Type: "string", Description: "recipient; defaults to the client's phone"},
			{Name: "bodyTemplate", Type: "string", Required: true, Description: "supports {{path}} placeholders"},
		}},
		{Type: ActionCreateTask, Description: "Create a task", Fields: []ConfigField{
			{Name: "title", Type: "string", Required: true},
			{Name: "description", Type: "string"},
			{Name: "priority", Type: "string"},
			{Name: "assignedTo", Type: "string"},
			{Name: "dueInDays", Type: "int"},
		}},
		{Type: ActionUpdateClientStatus, Description: "Move the client to a new status", Fields: []ConfigField{
			{Name: "status", Type: "string", Required: true},
		}},
		{Type: ActionAddTag, Description: "Add a tag to the client", Fields: []ConfigField{
			{Name: "tag", Type: "string", Required: true},
		}},
		{Type: ActionRemoveTag, Description: "Remove a tag from the client", Fields: []ConfigField{
			{Name: "tag", Type: "string", Required: true},
		}},
		{Type: ActionAssignClient, Description: "Assign the client to a user", Fields: []ConfigField{
			{Name: "userId", Type: "string", Required: true},
		}},
		{Type: ActionRequestDocument, Description: "Open a document request for the client", Fields: []ConfigField{
			{Name: "documentType", Type: "string", Required: true},
			{Name: "message", Type: "string"},
		}},
		{Type: ActionAddNote, Description: "Add a note to the client", Fields: []ConfigField{
			{Name: "content", Type: "string", Required: true, Description: "supports {{path}} placeholders"},
			{Name: "category", Type: "string"},
		}},
		{Type: ActionSendNotification, Description: "Notify a user in-app", Fields: []ConfigField{
			{Name: "userId", Type: "string", Required: true},
			{Name: "title", Type: "string", Required: true},
			{Name: "message", Type: "string"},
		}},
		{Type: ActionCallWebhook, Description: "Call an external HTTP endpoint", Fields: []ConfigField{
			{Name: "url", Type: "string", Required: true},
			{Name: "method", Type: "string", Description: "defaults to POST"},
			{Name: "headers", Type: "map[string]string"},
			{Name: "bodyTemplate", Type: "string", Description: "supports {{path}} placeholders"},
			{Name: "retryOnFailure", Type: "bool"},
			{Name: "maxRetries", Type: "int"},
			{Name: "retryDelaySeconds", Type: "int"},
			{Name: "timeoutSeconds", Type: "int"},
		}},
		{Type: ActionWait, Description: "Pause the run for a fixed duration", Fields: []ConfigField{
			{Name: "durationSeconds", Type: "int", Required: true},
		}},
	}
}
