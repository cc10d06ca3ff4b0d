package admin

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sipico/consent-logger/internal/auth"
	"github.com/sipico/consent-logger/internal/logging"
	"github.com/sipico/consent-logger/internal/storage"
)

// SetLogLevelRequest is the request body for POST /api/loglevel
type SetLogLevelRequest struct {
	Level string `json:"level"`
}

// HandleSetLogLevel changes runtime log level
// POST /api/loglevel
// Body: {"level": "debug|info|warn|error"}
func (h *Handler) HandleSetLogLevel(w http.ResponseWriter, r *http.Request) {
	var req SetLogLevelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Level) == "" {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Body must be {\"level\": \"...\"}")
		return
	}

	level, err := logging.ParseLevel(req.Level)
	if err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest,
			"Invalid level (must be: debug, info, warn, error)")
		return
	}

	h.logLevel.Set(level)
	h.logger.Info("log level changed", "new_level", level.String())

	writeJSON(w, http.StatusOK, map[string]string{
		"level": strings.ToLower(level.String()),
	})
}

// WhoamiResponse describes the authenticated caller.
type WhoamiResponse struct {
	TokenID      int64    `json:"token_id,omitempty"`
	Name         string   `json:"name"`
	IsAdmin      bool     `json:"is_admin"`
	IsMasterKey  bool     `json:"is_master_key"`
	Capabilities []string `json:"capabilities"`
}

// HandleWhoami returns the identity behind the request's key.
// GET /api/whoami
func (h *Handler) HandleWhoami(w http.ResponseWriter, r *http.Request) {
	resp := WhoamiResponse{Capabilities: []string{}}
	if id := auth.IdentityFromContext(r.Context()); id != nil {
		resp = WhoamiResponse{
			TokenID:      id.TokenID,
			Name:         id.Name,
			IsAdmin:      id.IsAdmin,
			IsMasterKey:  id.MasterKey,
			Capabilities: id.CapabilityNames(),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// UnifiedTokenResponse represents a token in API responses. The key
// itself is never returned after creation.
type UnifiedTokenResponse struct {
	ID           int64    `json:"id"`
	Name         string   `json:"name"`
	IsAdmin      bool     `json:"is_admin"`
	Capabilities []string `json:"capabilities"`
	CreatedAt    string   `json:"created_at"`
}

func tokenResponse(t *storage.Token) UnifiedTokenResponse {
	caps := t.Capabilities
	if caps == nil {
		caps = []string{}
	}
	return UnifiedTokenResponse{
		ID:           t.ID,
		Name:         t.Name,
		IsAdmin:      t.IsAdmin,
		Capabilities: caps,
		CreatedAt:    t.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// HandleListUnifiedTokens returns all tokens
// GET /api/tokens
func (h *Handler) HandleListUnifiedTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.storage.ListTokens(r.Context())
	if err != nil {
		h.internalError(w, "failed to list tokens", err)
		return
	}

	resp := make([]UnifiedTokenResponse, len(tokens))
	for i, t := range tokens {
		resp[i] = tokenResponse(t)
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateUnifiedTokenRequest is the request body for POST /api/tokens.
// Capabilities are required for non-admin tokens and ignored for admins.
type CreateUnifiedTokenRequest struct {
	Name         string   `json:"name"`
	IsAdmin      bool     `json:"is_admin"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// CreateUnifiedTokenResponse includes the key, shown only once.
type CreateUnifiedTokenResponse struct {
	UnifiedTokenResponse
	Token string `json:"token"`
}

// HandleCreateUnifiedToken creates a token with a generated key
// POST /api/tokens
func (h *Handler) HandleCreateUnifiedToken(w http.ResponseWriter, r *http.Request) {
	var req CreateUnifiedTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid JSON")
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Name is required")
		return
	}

	var capNames []string
	if !req.IsAdmin {
		if len(req.Capabilities) == 0 {
			WriteErrorWithHint(w, http.StatusBadRequest, ErrCodeInvalidRequest,
				"Non-admin tokens need at least one capability",
				"Valid capabilities: "+strings.Join(capabilityList(), ", "))
			return
		}
		caps, err := auth.ParseCapabilities(req.Capabilities)
		if err != nil {
			WriteErrorWithHint(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error(),
				"Valid capabilities: "+strings.Join(capabilityList(), ", "))
			return
		}
		for _, c := range caps {
			capNames = append(capNames, string(c))
		}

		admins, err := h.storage.CountAdminTokens(r.Context())
		if err != nil {
			h.internalError(w, "failed to count admin tokens", err)
			return
		}
		if admins == 0 {
			WriteErrorWithHint(w, http.StatusUnprocessableEntity, ErrCodeNoAdminTokenExists,
				"No admin token exists",
				"Create an admin token (is_admin: true) first.")
			return
		}
	}

	key, err := generateRandomToken()
	if err != nil {
		h.internalError(w, "failed to generate token", err)
		return
	}

	token, err := h.storage.CreateToken(r.Context(), req.Name, req.IsAdmin, auth.HashToken(key), capNames)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			WriteError(w, http.StatusConflict, ErrCodeDuplicateToken, "Token already exists")
			return
		}
		h.internalError(w, "failed to create token", err)
		return
	}

	h.logger.Info("token created", "id", token.ID, "name", token.Name, "is_admin", token.IsAdmin)
	h.record(r.Context(), fmt.Sprintf("API token '%s' created", token.Name))

	writeJSON(w, http.StatusCreated, CreateUnifiedTokenResponse{
		UnifiedTokenResponse: tokenResponse(token),
		Token:                key,
	})
}

// HandleGetUnifiedToken returns one token
// GET /api/tokens/{id}
func (h *Handler) HandleGetUnifiedToken(w http.ResponseWriter, r *http.Request) {
	id, ok := tokenID(w, r)
	if !ok {
		return
	}

	token, err := h.storage.GetTokenByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			WriteError(w, http.StatusNotFound, ErrCodeNotFound, "Token not found")
			return
		}
		h.internalError(w, "failed to get token", err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse(token))
}

// HandleDeleteUnifiedToken deletes a token. The last admin token cannot
// be deleted.
// DELETE /api/tokens/{id}
func (h *Handler) HandleDeleteUnifiedToken(w http.ResponseWriter, r *http.Request) {
	id, ok := tokenID(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	token, err := h.storage.GetTokenByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			WriteError(w, http.StatusNotFound, ErrCodeNotFound, "Token not found")
			return
		}
		h.internalError(w, "failed to get token", err)
		return
	}

	if token.IsAdmin {
		admins, err := h.storage.CountAdminTokens(ctx)
		if err != nil {
			h.internalError(w, "failed to count admin tokens", err)
			return
		}
		if admins <= 1 {
			WriteErrorWithHint(w, http.StatusConflict, ErrCodeCannotDeleteLastAdmin,
				"Cannot delete the last admin token",
				"Create another admin token first.")
			return
		}
	}

	if err := h.storage.DeleteToken(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			WriteError(w, http.StatusNotFound, ErrCodeNotFound, "Token not found")
			return
		}
		h.internalError(w, "failed to delete token", err)
		return
	}

	h.logger.Info("token deleted", "id", id, "name", token.Name)
	h.record(ctx, fmt.Sprintf("API token '%s' deleted", token.Name))
	w.WriteHeader(http.StatusNoContent)
}

func tokenID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Invalid token ID")
		return 0, false
	}
	return id, true
}

func capabilityList() []string {
	names := make([]string, len(auth.AllCapabilities))
	for i, c := range auth.AllCapabilities {
		names[i] = string(c)
	}
	return names
}

// generateRandomToken generates a random token as a hex string
func generateRandomToken() (string, error) {
	// 32 random bytes (256 bits)
	token := make([]byte, 32)
	if _, err := rand.Read(token); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}
	return hex.EncodeToString(token), nil
}
