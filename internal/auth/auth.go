// Package auth authenticates admin API keys and checks capabilities.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/sipico/consent-logger/internal/storage"
)

// HashToken computes the SHA256 hash of a token for storage lookup.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// Capability names an admin API operation class a token may be granted.
type Capability string

const (
	// CapViewConsents lists, searches, exports and inspects consent records.
	CapViewConsents Capability = "view_consents"
	// CapDownloadProof downloads and verifies proof of consent documents.
	CapDownloadProof Capability = "download_proof"
	// CapManageCookies views and edits the tracked cookie registry.
	CapManageCookies Capability = "manage_cookies"
	// CapRunScan triggers a cookie scan.
	CapRunScan Capability = "run_scan"
	// CapViewActivity reads the activity log.
	CapViewActivity Capability = "view_activity"
	// CapManageSettings reads and changes scanner settings.
	CapManageSettings Capability = "manage_settings"
)

// AllCapabilities lists every capability, sorted.
var AllCapabilities = []Capability{
	CapDownloadProof,
	CapManageCookies,
	CapManageSettings,
	CapRunScan,
	CapViewActivity,
	CapViewConsents,
}

// Errors for authentication and authorization failures.
var (
	// ErrMissingKey indicates no API key was provided.
	ErrMissingKey = errors.New("auth: missing API key")
	// ErrInvalidKey indicates the API key is not valid.
	ErrInvalidKey = errors.New("auth: invalid API key")
	// ErrMasterKeyLocked indicates the master key was used after bootstrap.
	ErrMasterKeyLocked = errors.New("auth: master key locked")
	// ErrForbidden indicates the key lacks a required capability.
	ErrForbidden = errors.New("auth: permission denied")
	// ErrUnknownCapability indicates a capability name that does not exist.
	ErrUnknownCapability = errors.New("auth: unknown capability")
)

// ParseCapabilities validates names and returns them sorted without
// duplicates.
func ParseCapabilities(names []string) ([]Capability, error) {
	out := make([]Capability, 0, len(names))
	for _, name := range names {
		c := Capability(strings.ToLower(strings.TrimSpace(name)))
		if !slices.Contains(AllCapabilities, c) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCapability, name)
		}
		out = append(out, c)
	}
	slices.Sort(out)
	return slices.Compact(out), nil
}

// Identity is the authenticated caller of an admin request.
type Identity struct {
	TokenID      int64
	Name         string
	IsAdmin      bool
	MasterKey    bool
	Capabilities []Capability
}

// Has reports whether the identity holds c. Admins hold every capability.
func (id *Identity) Has(c Capability) bool {
	if id == nil {
		return false
	}
	return id.IsAdmin || slices.Contains(id.Capabilities, c)
}

// CapabilityNames returns the effective capabilities as strings.
func (id *Identity) CapabilityNames() []string {
	caps := id.Capabilities
	if id.IsAdmin {
		caps = AllCapabilities
	}
	names := make([]string, len(caps))
	for i, c := range caps {
		names[i] = string(c)
	}
	return names
}

// TokenLookup finds tokens by hash.
type TokenLookup interface {
	GetTokenByHash(ctx context.Context, keyHash string) (*storage.Token, error)
}

// Authenticator resolves API keys to identities.
type Authenticator struct {
	tokens    TokenLookup
	bootstrap *BootstrapService
}

// NewAuthenticator creates an Authenticator. bootstrap may be nil, which
// disables master key authentication.
func NewAuthenticator(tokens TokenLookup, bootstrap *BootstrapService) *Authenticator {
	return &Authenticator{tokens: tokens, bootstrap: bootstrap}
}

// Authenticate resolves key. The master key is accepted only while no admin
// token exists.
func (a *Authenticator) Authenticate(ctx context.Context, key string) (*Identity, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, ErrMissingKey
	}

	if a.bootstrap != nil && a.bootstrap.IsMasterKey(key) {
		canUse, err := a.bootstrap.CanUseMasterKey(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to check bootstrap state: %w", err)
		}
		if !canUse {
			return nil, ErrMasterKeyLocked
		}
		return &Identity{Name: "master", IsAdmin: true, MasterKey: true}, nil
	}

	token, err := a.tokens.GetTokenByHash(ctx, HashToken(key))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidKey
		}
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}

	caps := make([]Capability, 0, len(token.Capabilities))
	for _, c := range token.Capabilities {
		caps = append(caps, Capability(c))
	}
	return &Identity{
		TokenID:      token.ID,
		Name:         token.Name,
		IsAdmin:      token.IsAdmin,
		Capabilities: caps,
	}, nil
}
