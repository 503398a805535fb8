package engine

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
)

// multipartBody builds a multipart form with the given fields and one
// file part named "file".
func multipartBody(t *testing.T, fields map[string]string, withFile bool) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("write field %s: %v", k, err)
		}
	}
	if withFile {
		part, err := w.CreateFormFile("file", "report.pdf")
		if err != nil {
			t.Fatalf("create file part: %v", err)
		}
		if _, err := part.Write([]byte("content")); err != nil {
			t.Fatalf("write file part: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return buf, w.FormDataContentType()
}

func TestDownloadURLUsesConfiguredBase(t *testing.T) {
	h := NewFileHandler(nil, nil, "https://api.example.com/", 1024)

	got := h.downloadURL("characterization", "41", "abc-123")
	want := "https://api.example.com/tables/characterization/record/41/file/abc-123/content"
	if got != want {
		t.Errorf("expected %s, got %s", want, got)
	}
}

func TestUploadRejectsEmptyDisplayName(t *testing.T) {
	// Validation runs before any storage or database access, so a handler
	// with neither is enough to exercise the rejection.
	h := NewFileHandler(nil, nil, "http://localhost:8080", 1024)

	app := fiber.New()
	app.Post("/tables/:table/record/:id/file", h.Upload)

	cases := []map[string]string{
		{},
		{"display_name": ""},
		{"display_name": "   "},
	}
	for i, fields := range cases {
		body, contentType := multipartBody(t, fields, true)
		req, _ := http.NewRequest("POST", "/tables/characterization/record/1/file", body)
		req.Header.Set("Content-Type", contentType)

		resp, err := app.Test(req, -1)
		if err != nil {
			t.Fatalf("case %d: request failed: %v", i, err)
		}
		if resp.StatusCode != 422 {
			t.Fatalf("case %d: expected 422 for empty display name, got %d", i, resp.StatusCode)
		}

		raw, _ := io.ReadAll(resp.Body)
		var errResp ErrorResponse
		if err := json.Unmarshal(raw, &errResp); err != nil {
			t.Fatalf("case %d: parse error response: %v", i, err)
		}
		if errResp.Error.Code != "VALIDATION_FAILED" {
			t.Errorf("case %d: expected VALIDATION_FAILED, got %s", i, errResp.Error.Code)
		}
	}
}

func TestUploadRejectsMissingFile(t *testing.T) {
	h := NewFileHandler(nil, nil, "http://localhost:8080", 1024)

	app := fiber.New()
	app.Post("/tables/:table/record/:id/file", h.Upload)

	body, contentType := multipartBody(t, map[string]string{"display_name": "Report"}, false)
	req, _ := http.NewRequest("POST", "/tables/characterization/record/1/file", body)
	req.Header.Set("Content-Type", contentType)

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if resp.StatusCode != 422 {
		t.Fatalf("expected 422 for missing file part, got %d", resp.StatusCode)
	}
}
