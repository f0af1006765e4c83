// Package workflows implements the automation engine: definition management
// and versioning, trigger matching, condition evaluation, action execution,
// the execution state machine, and the webhook ingestion gate.
package workflows

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/flowdesk/automation_layer/internal/app/domain/crm"
	"github.com/flowdesk/automation_layer/internal/app/domain/workflow"
)

// EvalContext is the snapshot document conditions and body templates resolve
// against. It is built once per run, before the step loop, and holds a single
// JSON document queried by dotted path.
type EvalContext struct {
	doc []byte
}

// NewEvalContext assembles the snapshot for one execution. The document
// exposes the client entity under "client", the trigger payload under
// "trigger", the execution identity under "execution", and a handful of flat
// convenience keys (client_name, client_email, client_phone, client_status)
// used by message templates.
func NewEvalContext(wf workflow.Workflow, exec workflow.Execution, client *crm.Client) EvalContext {
	snapshot := map[string]interface{}{
		"workflow": map[string]interface{}{
			"id":   wf.ID,
			"name": wf.Name,
		},
		"execution": map[string]interface{}{
			"id":         exec.ID,
			"workflowId": exec.WorkflowID,
		},
	}
	if exec.TriggerData != nil {
		snapshot["trigger"] = exec.TriggerData
	}
	if client != nil {
		snapshot["client"] = *client
		snapshot["client_name"] = client.FullName()
		snapshot["client_email"] = client.Email
		snapshot["client_phone"] = client.Phone
		snapshot["client_status"] = client.Status
	}

	doc, err := json.Marshal(snapshot)
	if err != nil {
		doc = []byte("{}")
	}
	return EvalContext{doc: doc}
}

// Lookup resolves a dotted path (e.g. "client.status") against the snapshot.
func (c EvalContext) Lookup(path string) gjson.Result {
	return gjson.GetBytes(c.doc, path)
}

// Render substitutes {{path}} placeholders in template with snapshot values.
// Unresolvable placeholders render as empty strings.
func (c EvalContext) Render(template string) string {
	var b strings.Builder
	rest := template
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			b.WriteString(rest)
			return b.String()
		}
		end := strings.Index(rest[start:], "}}")
		if end < 0 {
			b.WriteString(rest)
			return b.String()
		}
		b.WriteString(rest[:start])
		path := strings.TrimSpace(rest[start+2 : start+end])
		if res := c.Lookup(path); res.Exists() {
			b.WriteString(res.String())
		}
		rest = rest[start+end+2:]
	}
}
