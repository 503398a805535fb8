//go:build integration

package engine_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"

	"planadmin-backend/internal/config"
	"planadmin-backend/internal/engine"
	"planadmin-backend/internal/metadata"
	"planadmin-backend/internal/store"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	ctx := context.Background()
	s, err := store.New(ctx, config.DatabaseConfig{
		Host:     "localhost",
		Port:     5433,
		User:     "planadmin",
		Password: "planadmin",
		Name:     "planadmin",
		PoolSize: 2,
	})
	if err != nil {
		t.Fatalf("connect to test db: %v", err)
	}
	if err := s.Bootstrap(ctx); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return s
}

// testAuth stands in for the JWT middleware so handlers see a logged-in
// admin without a token round trip.
func testAuth(c *fiber.Ctx) error {
	c.Locals("user", &metadata.UserContext{ID: "itest", Username: "itest", Roles: []string{"admin"}})
	return c.Next()
}

func testApp(t *testing.T, s *store.Store, reg *metadata.Registry) *fiber.App {
	t.Helper()
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var appErr *engine.AppError
			if errors.As(err, &appErr) {
				return c.Status(appErr.Status).JSON(engine.ErrorResponse{Error: appErr})
			}
			log.Printf("ERROR: %v", err)
			return c.Status(500).JSON(engine.ErrorResponse{
				Error: &engine.AppError{Code: "INTERNAL_ERROR", Message: "Internal server error"},
			})
		},
	})
	vis := engine.NewVisibility(nil)
	h := engine.NewHandler(s, reg, vis)
	fh := engine.NewFileHandler(s, nil, "http://localhost:8080", 1024*1024)
	engine.RegisterTableRoutes(app, h, fh, testAuth)
	planH := engine.NewCompositeHandler(s, reg)
	engine.RegisterPlanRoutes(app, planH, testAuth)
	return app
}

func doRequest(t *testing.T, app *fiber.App, method, path string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, path, reader)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("execute request: %v", err)
	}
	return resp
}

func readBody(t *testing.T, resp *http.Response) []byte {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return b
}

func TestBulkUpdateStatus_AppliesToAllSelected(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	defer s.Close()

	const table = "_test_bulk_plans"
	defer func() {
		store.Exec(ctx, s.Pool, "DROP TABLE IF EXISTS "+table)
		store.Exec(ctx, s.Pool, "DELETE FROM _history WHERE table_name = $1", table)
	}()

	_, err := store.Exec(ctx, s.Pool, `
		CREATE TABLE `+table+` (
			id SERIAL PRIMARY KEY,
			name TEXT,
			status TEXT DEFAULT '1',
			created_at TIMESTAMPTZ DEFAULT NOW(),
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`)
	if err != nil {
		t.Fatalf("create test table: %v", err)
	}
	for _, name := range []string{"first", "second"} {
		if _, err := store.Exec(ctx, s.Pool, "INSERT INTO "+table+" (name) VALUES ($1)", name); err != nil {
			t.Fatalf("seed row %s: %v", name, err)
		}
	}

	reg := metadata.NewRegistry()
	app := testApp(t, s, reg)

	resp := doRequest(t, app, "PUT", "/tables/"+table+"/bulk-update", map[string]any{
		"record_ids": []string{"1", "2"},
		"updates":    map[string]any{"status": "5"},
	})
	if resp.StatusCode != 200 {
		t.Fatalf("expected 200, got %d: %s", resp.StatusCode, readBody(t, resp))
	}

	rows, err := store.QueryRows(ctx, s.Pool, "SELECT id, status FROM "+table+" ORDER BY id")
	if err != nil {
		t.Fatalf("reload rows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	for _, row := range rows {
		if status, _ := row["status"].(string); status != "5" {
			t.Errorf("record %v: expected status 5, got %q", row["id"], status)
		}
	}

	entries, err := store.QueryRows(ctx, s.Pool,
		"SELECT record_id FROM _history WHERE table_name = $1 AND change_kind = $2", table, "STATUS_CHANGE")
	if err != nil {
		t.Fatalf("load history: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("expected one STATUS_CHANGE entry per record, got %d", len(entries))
	}
}

func TestSatelliteGetOrCreate_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	defer s.Close()

	const parentID = "990001"
	_, err := store.Exec(ctx, s.Pool, `
		CREATE TABLE IF NOT EXISTS diagnostic (
			id SERIAL PRIMARY KEY,
			characterization_id TEXT,
			notes TEXT,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			updated_at TIMESTAMPTZ DEFAULT NOW()
		)`)
	if err != nil {
		t.Fatalf("create diagnostic table: %v", err)
	}
	defer func() {
		store.Exec(ctx, s.Pool, "DELETE FROM _history WHERE table_name = 'diagnostic' AND record_id IN (SELECT id::text FROM diagnostic WHERE characterization_id = $1)", parentID)
		store.Exec(ctx, s.Pool, "DELETE FROM diagnostic WHERE characterization_id = $1", parentID)
	}()

	reg := metadata.NewRegistry()
	app := testApp(t, s, reg)

	type satResp struct {
		Data map[string]any `json:"data"`
	}

	resp := doRequest(t, app, "POST", "/plans/"+parentID+"/satellites/diagnostic", map[string]any{"notes": "first"})
	if resp.StatusCode != 200 {
		t.Fatalf("first call: expected 200, got %d: %s", resp.StatusCode, readBody(t, resp))
	}
	var first satResp
	if err := json.Unmarshal(readBody(t, resp), &first); err != nil {
		t.Fatalf("parse first response: %v", err)
	}

	// A second call must return the existing record, ignoring the new seed.
	resp = doRequest(t, app, "POST", "/plans/"+parentID+"/satellites/diagnostic", map[string]any{"notes": "second"})
	if resp.StatusCode != 200 {
		t.Fatalf("second call: expected 200, got %d: %s", resp.StatusCode, readBody(t, resp))
	}
	var second satResp
	if err := json.Unmarshal(readBody(t, resp), &second); err != nil {
		t.Fatalf("parse second response: %v", err)
	}

	if first.Data["id"] == nil || first.Data["id"] != second.Data["id"] {
		t.Errorf("expected both calls to return the same record id, got %v and %v", first.Data["id"], second.Data["id"])
	}
	if notes, _ := second.Data["notes"].(string); notes != "first" {
		t.Errorf("expected original seed to win, got notes %q", notes)
	}

	rows, err := store.QueryRows(ctx, s.Pool, "SELECT id FROM diagnostic WHERE characterization_id = $1", parentID)
	if err != nil {
		t.Fatalf("count satellite rows: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("expected exactly one satellite row, got %d", len(rows))
	}
}

func TestFileComplianceScopedToRecord(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)
	defer s.Close()

	row, err := store.QueryRow(ctx, s.Pool, `
		INSERT INTO _files (table_name, record_id, display_name, storage_path, url)
		VALUES ('characterization', '41', 'Signed report', 'itest/none', '/none')
		RETURNING id::text AS id`)
	if err != nil {
		t.Fatalf("seed file row: %v", err)
	}
	fileID, _ := row["id"].(string)
	defer store.Exec(ctx, s.Pool, "DELETE FROM _files WHERE id = $1", fileID)

	reg := metadata.NewRegistry()
	app := testApp(t, s, reg)

	// The same file id through another record's URL must 404, not act.
	resp := doRequest(t, app, "PUT", "/tables/characterization/record/99/file/"+fileID+"/compliance",
		map[string]any{"verdict": true})
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404 for mismatched record, got %d: %s", resp.StatusCode, readBody(t, resp))
	}

	reloaded, err := store.QueryRow(ctx, s.Pool, "SELECT compliant FROM _files WHERE id = $1", fileID)
	if err != nil {
		t.Fatalf("reload file row: %v", err)
	}
	if reloaded["compliant"] != nil {
		t.Errorf("expected verdict untouched, got %v", reloaded["compliant"])
	}

	resp = doRequest(t, app, "DELETE", "/tables/characterization/record/99/file/"+fileID, nil)
	if resp.StatusCode != 404 {
		t.Fatalf("expected 404 deleting through mismatched record, got %d", resp.StatusCode)
	}
	if _, err := store.QueryRow(ctx, s.Pool, "SELECT id FROM _files WHERE id = $1", fileID); err != nil {
		t.Errorf("expected file row to survive, got %v", err)
	}
}
