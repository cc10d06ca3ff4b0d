package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
)

// BootstrapState is whether the admin API has been configured.
type BootstrapState int

const (
	// StateUnconfigured means no admin token exists and the master key is
	// accepted.
	StateUnconfigured BootstrapState = iota
	// StateConfigured means an admin token exists and the master key is
	// locked out.
	StateConfigured
)

// String returns the string representation of the bootstrap state.
func (s BootstrapState) String() string {
	switch s {
	case StateUnconfigured:
		return "UNCONFIGURED"
	case StateConfigured:
		return "CONFIGURED"
	default:
		return "UNKNOWN"
	}
}

// AdminTokenChecker reports whether any admin token exists.
type AdminTokenChecker interface {
	HasAnyAdminToken(ctx context.Context) (bool, error)
}

// BootstrapService decides when the master key may be used. It is meant
// for creating the first admin token after a fresh install.
type BootstrapService struct {
	tokens        AdminTokenChecker
	masterKeyHash string
}

// NewBootstrapService creates a bootstrap service for masterKey.
func NewBootstrapService(tokens AdminTokenChecker, masterKey string) *BootstrapService {
	return &BootstrapService{
		tokens:        tokens,
		masterKeyHash: HashToken(masterKey),
	}
}

// GetState returns the current bootstrap state.
func (b *BootstrapService) GetState(ctx context.Context) (BootstrapState, error) {
	hasAdmin, err := b.tokens.HasAnyAdminToken(ctx)
	if err != nil {
		return StateUnconfigured, err
	}
	if hasAdmin {
		return StateConfigured, nil
	}
	return StateUnconfigured, nil
}

// IsMasterKey reports whether key is the master key. The comparison is
// constant time.
func (b *BootstrapService) IsMasterKey(key string) bool {
	hash := sha256.Sum256([]byte(key))
	return subtle.ConstantTimeCompare([]byte(hex.EncodeToString(hash[:])), []byte(b.masterKeyHash)) == 1
}

// CanUseMasterKey reports whether the system is unconfigured.
func (b *BootstrapService) CanUseMasterKey(ctx context.Context) (bool, error) {
	state, err := b.GetState(ctx)
	if err != nil {
		return false, err
	}
	return state == StateUnconfigured, nil
}

// ValidateMasterKey reports whether key is the master key and may be used.
func (b *BootstrapService) ValidateMasterKey(ctx context.Context, key string) (bool, error) {
	if !b.IsMasterKey(key) {
		return false, nil
	}
	return b.CanUseMasterKey(ctx)
}
