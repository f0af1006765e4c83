//go:build integration && postgres

package httpapi

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	app "github.com/flowdesk/automation_layer/internal/app"
	"github.com/flowdesk/automation_layer/internal/app/domain/workflow"
	"github.com/flowdesk/automation_layer/internal/app/storage/postgres"
)

// Integration test against Postgres to ensure migrations plus the core API
// flows work with real persistence.
func TestIntegrationPostgres(t *testing.T) {
	_ = godotenv.Load() // allow .env for local runs
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping Postgres integration")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if err := postgres.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	store := postgres.New(db)
	application, err := app.New(app.Stores{
		Workflows:        store,
		Versions:         store,
		Executions:       store,
		Clients:          store,
		Tasks:            store,
		Notes:            store,
		Communications:   store,
		Notifications:    store,
		DocumentRequests: store,
	}, app.Options{}, nil)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}

	handler := NewHandler(application.Workflows, application.CRM, nil, Options{})
	server := httptest.NewServer(handler)
	defer server.Close()
	client := server.Client()

	if resp, err := client.Get(server.URL + "/healthz"); err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz failed: %v", err)
	}

	resp := do(handler, http.MethodPost, "/workflows", marshal(t, noteWorkflow()))
	if resp.Code != http.StatusCreated {
		t.Fatalf("create workflow status: %d: %s", resp.Code, resp.Body)
	}
	var created workflow.Workflow
	if err := json.Unmarshal(resp.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	defer do(handler, http.MethodDelete, "/workflows/"+created.ID, nil)

	resp = do(handler, http.MethodPost, "/workflows/"+created.ID+"/execute", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("execute status: %d: %s", resp.Code, resp.Body)
	}
}
