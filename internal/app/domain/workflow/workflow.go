// Package workflow defines the automation engine's domain model: workflow
// definitions, trigger and action vocabularies, condition trees, immutable
// definition versions, and execution records.
package workflow

import "time"

// TriggerType is the closed category of domain event a workflow reacts to.
type TriggerType string

const (
	TriggerClientCreated       TriggerType = "CLIENT_CREATED"
	TriggerClientStatusChanged TriggerType = "CLIENT_STATUS_CHANGED"
	TriggerClientAssigned      TriggerType = "CLIENT_ASSIGNED"
	TriggerDocumentUploaded    TriggerType = "DOCUMENT_UPLOADED"
	TriggerTaskCompleted       TriggerType = "TASK_COMPLETED"
	TriggerNoteAdded           TriggerType = "NOTE_ADDED"
	TriggerTagAdded            TriggerType = "TAG_ADDED"
	TriggerScheduled           TriggerType = "SCHEDULED"
	TriggerWebhook             TriggerType = "WEBHOOK"
	TriggerManual              TriggerType = "MANUAL"
)

// TriggerTypes lists every valid trigger type.
func TriggerTypes() []TriggerType {
	return []TriggerType{
		TriggerClientCreated,
		TriggerClientStatusChanged,
		TriggerClientAssigned,
		TriggerDocumentUploaded,
		TriggerTaskCompleted,
		TriggerNoteAdded,
		TriggerTagAdded,
		TriggerScheduled,
		TriggerWebhook,
		TriggerManual,
	}
}

// ValidTriggerType reports whether t is part of the closed vocabulary.
func ValidTriggerType(t TriggerType) bool {
	for _, known := range TriggerTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// TriggerConfig narrows which occurrences of a trigger type match a workflow.
// Only the fields belonging to the workflow's trigger type are consulted; an
// unset field is a wildcard, not "never match".
type TriggerConfig struct {
	Status       string `json:"status,omitempty"`       // CLIENT_CREATED
	FromStatus   string `json:"fromStatus,omitempty"`   // CLIENT_STATUS_CHANGED
	ToStatus     string `json:"toStatus,omitempty"`     // CLIENT_STATUS_CHANGED
	AssignedTo   string `json:"assignedTo,omitempty"`   // CLIENT_ASSIGNED
	DocumentType string `json:"documentType,omitempty"` // DOCUMENT_UPLOADED
	Priority     string `json:"priority,omitempty"`     // TASK_COMPLETED
	Category     string `json:"category,omitempty"`     // NOTE_ADDED
	Tag          string `json:"tag,omitempty"`          // TAG_ADDED
	Cron         string `json:"cron,omitempty"`         // SCHEDULED
	Secret       string `json:"secret,omitempty"`       // WEBHOOK
}

// Workflow is a named automation rule: when its trigger fires and its
// conditions hold, its actions run in order.
type Workflow struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Description   string        `json:"description,omitempty"`
	IsActive      bool          `json:"isActive"`
	IsTemplate    bool          `json:"isTemplate"`
	TriggerType   TriggerType   `json:"triggerType"`
	TriggerConfig TriggerConfig `json:"triggerConfig"`
	Conditions    *Condition    `json:"conditions,omitempty"`
	Actions       []Action      `json:"actions"`
	Version       int           `json:"version"`
	CreatedBy     string        `json:"createdBy,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// Definition is the versioned subset of a workflow: the fields snapshotted
// into version history and carried by export documents.
type Definition struct {
	Name          string        `json:"name"`
	Description   string        `json:"description,omitempty"`
	TriggerType   TriggerType   `json:"triggerType"`
	TriggerConfig TriggerConfig `json:"triggerConfig"`
	Conditions    *Condition    `json:"conditions,omitempty"`
	Actions       []Action      `json:"actions"`
}

// DefinitionOf extracts the versioned definition fields from a workflow.
func DefinitionOf(wf Workflow) Definition {
	return Definition{
		Name:          wf.Name,
		Description:   wf.Description,
		TriggerType:   wf.TriggerType,
		TriggerConfig: wf.TriggerConfig,
		Conditions:    wf.Conditions,
		Actions:       wf.Actions,
	}
}

// ApplyDefinition overwrites the workflow's definition fields from def,
// leaving identity, flags, version counter and timestamps untouched.
func (w *Workflow) ApplyDefinition(def Definition) {
	w.Name = def.Name
	w.Description = def.Description
	w.TriggerType = def.TriggerType
	w.TriggerConfig = def.TriggerConfig
	w.Conditions = def.Conditions
	w.Actions = def.Actions
}

// Version is an immutable snapshot of a workflow definition, tagged with the
// version number it represents. Rows are append-only.
type Version struct {
	ID         string     `json:"id"`
	WorkflowID string     `json:"workflowId"`
	Version    int        `json:"version"`
	Definition Definition `json:"definition"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// ExportDocument is the portable form of a workflow definition.
type ExportDocument struct {
	Version    string     `json:"version"`
	ExportedAt time.Time  `json:"exportedAt"`
	Workflow   Definition `json:"workflow"`
}

// ExportFormatVersion is the document format tag written on export and
// required on import.
const ExportFormatVersion = "1.0"
