package workflows

import (
	"context"
	"testing"

	"github.com/flowdesk/automation_layer/internal/app/domain/workflow"
	"github.com/flowdesk/automation_layer/internal/app/storage/memory"
)

func seedWorkflow(t *testing.T, store *memory.Store, wf workflow.Workflow) workflow.Workflow {
	t.Helper()
	if wf.Name == "" {
		wf.Name = "test workflow"
	}
	if len(wf.Actions) == 0 {
		wf.Actions = []workflow.Action{{Type: workflow.ActionAddNote, Config: workflow.ActionConfig{Content: "hi"}}}
	}
	created, err := store.CreateWorkflow(context.Background(), wf)
	if err != nil {
		t.Fatalf("seed workflow: %v", err)
	}
	return created
}

func TestMatcher_StatusChangeFilters(t *testing.T) {
	store := memory.New()
	filtered := seedWorkflow(t, store, workflow.Workflow{
		IsActive:      true,
		TriggerType:   workflow.TriggerClientStatusChanged,
		TriggerConfig: workflow.TriggerConfig{FromStatus: "LEAD", ToStatus: "ACTIVE"},
	})
	wildcard := seedWorkflow(t, store, workflow.Workflow{
		IsActive:    true,
		TriggerType: workflow.TriggerClientStatusChanged,
	})

	m := NewMatcher(store, nil)

	matched, err := m.Match(context.Background(), workflow.Event{
		Type:       workflow.TriggerClientStatusChanged,
		ClientID:   "c-1",
		FromStatus: "LEAD",
		ToStatus:   "ACTIVE",
	})
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(matched) != 2 {
		t.Fatalf("expected both workflows to fire, got %d", len(matched))
	}

	matched, err = m.Match(context.Background(), workflow.Event{
		Type:       workflow.TriggerClientStatusChanged,
		FromStatus: "LEAD",
		ToStatus:   "PROCESSING",
	})
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(matched) != 1 || matched[0].ID != wildcard.ID {
		t.Fatalf("expected only the wildcard workflow, got %d", len(matched))
	}
	_ = filtered
}

func TestMatcher_SkipsInactiveAndTemplates(t *testing.T) {
	store := memory.New()
	seedWorkflow(t, store, workflow.Workflow{
		IsActive:    false,
		TriggerType: workflow.TriggerClientCreated,
	})
	seedWorkflow(t, store, workflow.Workflow{
		IsActive:    true,
		IsTemplate:  true,
		TriggerType: workflow.TriggerClientCreated,
	})

	m := NewMatcher(store, nil)
	matched, err := m.Match(context.Background(), workflow.Event{Type: workflow.TriggerClientCreated})
	if err != nil {
		t.Fatalf("match: %v", err)
	}
	if len(matched) != 0 {
		t.Fatalf("inactive and template workflows must not match, got %d", len(matched))
	}
}

func TestMatcher_TypedFilters(t *testing.T) {
	store := memory.New()

	cases := []struct {
		name    string
		trigger workflow.TriggerType
		config  workflow.TriggerConfig
		hit     workflow.Event
		miss    workflow.Event
	}{
		{
			name:    "client created by status",
			trigger: workflow.TriggerClientCreated,
			config:  workflow.TriggerConfig{Status: "LEAD"},
			hit:     workflow.Event{Type: workflow.TriggerClientCreated, Status: "LEAD"},
			miss:    workflow.Event{Type: workflow.TriggerClientCreated, Status: "ACTIVE"},
		},
		{
			name:    "document uploaded by type",
			trigger: workflow.TriggerDocumentUploaded,
			config:  workflow.TriggerConfig{DocumentType: "W2"},
			hit:     workflow.Event{Type: workflow.TriggerDocumentUploaded, DocumentType: "W2"},
			miss:    workflow.Event{Type: workflow.TriggerDocumentUploaded, DocumentType: "PAYSTUB"},
		},
		{
			name:    "tag added",
			trigger: workflow.TriggerTagAdded,
			config:  workflow.TriggerConfig{Tag: "vip"},
			hit:     workflow.Event{Type: workflow.TriggerTagAdded, Tag: "vip"},
			miss:    workflow.Event{Type: workflow.TriggerTagAdded, Tag: "cold"},
		},
		{
			name:    "task completed by priority",
			trigger: workflow.TriggerTaskCompleted,
			config:  workflow.TriggerConfig{Priority: "HIGH"},
			hit:     workflow.Event{Type: workflow.TriggerTaskCompleted, Priority: "HIGH"},
			miss:    workflow.Event{Type: workflow.TriggerTaskCompleted, Priority: "LOW"},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			wf := seedWorkflow(t, store, workflow.Workflow{
				IsActive:      true,
				TriggerType:   tc.trigger,
				TriggerConfig: tc.config,
			})
			defer store.DeleteWorkflow(context.Background(), wf.ID)

			m := NewMatcher(store, nil)
			matched, err := m.Match(context.Background(), tc.hit)
			if err != nil {
				t.Fatalf("match hit: %v", err)
			}
			if len(matched) != 1 {
				t.Fatalf("expected hit event to match, got %d", len(matched))
			}
			matched, err = m.Match(context.Background(), tc.miss)
			if err != nil {
				t.Fatalf("match miss: %v", err)
			}
			if len(matched) != 0 {
				t.Fatalf("expected miss event not to match, got %d", len(matched))
			}
		})
	}
}
