package workflow

// Event is a raw domain occurrence handed to the trigger matcher. The typed
// fields mirror the trigger-config filters; Payload carries the full event
// body and becomes the execution's trigger data.
type Event struct {
	Type     TriggerType
	ClientID string
	UserID   string

	Status       string // CLIENT_CREATED
	FromStatus   string // CLIENT_STATUS_CHANGED
	ToStatus     string // CLIENT_STATUS_CHANGED
	AssignedTo   string // CLIENT_ASSIGNED
	DocumentType string // DOCUMENT_UPLOADED
	Priority     string // TASK_COMPLETED
	Category     string // NOTE_ADDED
	Tag          string // TAG_ADDED

	Payload map[string]interface{}
}

// TriggerData flattens the event into the map persisted on the execution.
// Typed filter fields are included alongside the payload so conditions can
// reference them by name.
func (e Event) TriggerData() map[string]interface{} {
	data := make(map[string]interface{}, len(e.Payload)+8)
	for k, v := range e.Payload {
		data[k] = v
	}
	data["triggerType"] = string(e.Type)
	if e.ClientID != "" {
		data["clientId"] = e.ClientID
	}
	if e.UserID != "" {
		data["userId"] = e.UserID
	}
	set := func(key, value string) {
		if value != "" {
			data[key] = value
		}
	}
	set("status", e.Status)
	set("fromStatus", e.FromStatus)
	set("toStatus", e.ToStatus)
	set("assignedTo", e.AssignedTo)
	set("documentType", e.DocumentType)
	set("priority", e.Priority)
	set("category", e.Category)
	set("tag", e.Tag)
	return data
}
