package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteErrorWithHint(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		status  int
		code    string
		message string
		hint    string
	}{
		{"bad request", http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid per_page", "Use one of 10, 25, 50, 100"},
		{"not found", http.StatusNotFound, ErrCodeNotFound, "No consent record for this id", ""},
		{"last admin", http.StatusConflict, ErrCodeCannotDeleteLastAdmin, "Cannot delete the last admin token", "Create another admin token first."},
		{"first token", http.StatusUnprocessableEntity, ErrCodeNoAdminTokenExists, "No admin token exists", "Create an admin token (is_admin: true) first."},
		{"capability", http.StatusForbidden, ErrCodeForbidden, "Token lacks the download_proof capability", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			WriteErrorWithHint(rec, tt.status, tt.code, tt.message, tt.hint)

			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("Content-Type = %q, want application/json", ct)
			}
			if cc := rec.Header().Get("Cache-Control"); cc != "no-store" {
				t.Errorf("Cache-Control = %q, want no-store", cc)
			}

			var raw map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if raw["error"] != tt.code || raw["message"] != tt.message {
				t.Errorf("body = %v, want error %q message %q", raw, tt.code, tt.message)
			}
			hint, present := raw["hint"]
			switch {
			case tt.hint == "" && present:
				t.Error("empty hint should be omitted")
			case tt.hint != "" && hint != tt.hint:
				t.Errorf("hint = %v, want %q", hint, tt.hint)
			}
		})
	}
}

func TestWriteError(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	WriteError(rec, http.StatusUnauthorized, ErrCodeInvalidCredentials, "Invalid API key")

	var resp APIError
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if rec.Code != http.StatusUnauthorized || resp.Error != "invalid_credentials" || resp.Hint != "" {
		t.Errorf("got %d %+v", rec.Code, resp)
	}
}

func TestErrorCodeConstants(t *testing.T) {
	t.Parallel()
	codes := map[string]string{
		ErrCodeInvalidRequest:        "invalid_request",
		ErrCodeInvalidCredentials:    "invalid_credentials",
		ErrCodeAdminRequired:         "admin_required",
		ErrCodeForbidden:             "forbidden",
		ErrCodeMasterKeyLocked:       "master_key_locked",
		ErrCodeNotFound:              "not_found",
		ErrCodeDuplicateToken:        "duplicate_token",
		ErrCodeCannotDeleteLastAdmin: "cannot_delete_last_admin",
		ErrCodeNoAdminTokenExists:    "no_admin_token_exists",
		ErrCodeInternalError:         "internal_error",
	}
	for got, want := range codes {
		if got != want {
			t.Errorf("error code %q, want %q", got, want)
		}
	}
}
