package proof

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/sipico/consent-logger/internal/storage"
)

// keyInfo binds derived keys to this use so the secret can be shared with
// other derivations.
const keyInfo = "consent-proof-v1"

// Algorithm describes how digests are computed. It is printed on documents.
const Algorithm = "SHA-256 (canonical record || server key)"

// canonicalTime is RFC 3339 with fixed microsecond precision in UTC.
const canonicalTime = "2006-01-02T15:04:05.000000Z07:00"

type canonicalRecord struct {
	ID         int64           `json:"id"`
	ConsentID  string          `json:"consent_id"`
	Domain     string          `json:"domain"`
	Status     string          `json:"status"`
	Categories map[string]bool `json:"categories"`
	IP         string          `json:"ip"`
	UserAgent  string          `json:"user_agent"`
	Country    string          `json:"country"`
	CreatedAt  string          `json:"created_at"`
}

// Canonical returns the canonical serialization of rec: JSON with fixed
// field order, sorted category keys and a fixed-precision UTC timestamp.
func Canonical(rec *storage.ConsentRecord) ([]byte, error) {
	categories := rec.Categories
	if categories == nil {
		categories = map[string]bool{}
	}
	b, err := json.Marshal(canonicalRecord{
		ID:         rec.ID,
		ConsentID:  rec.ConsentID,
		Domain:     rec.Domain,
		Status:     rec.Status,
		Categories: categories,
		IP:         rec.IP,
		UserAgent:  rec.UserAgent,
		Country:    rec.Country,
		CreatedAt:  rec.CreatedAt.UTC().Format(canonicalTime),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to serialize record: %w", err)
	}
	return b, nil
}

// deriveKey derives the 32-byte proof key from the configured secret.
func deriveKey(secret []byte) ([]byte, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("failed to derive proof key: %w", err)
	}
	return key, nil
}

// digest returns hex(SHA-256(canonical(rec) || key)).
func digest(rec *storage.ConsentRecord, key []byte) (string, error) {
	canonical, err := Canonical(rec)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write(canonical)
	h.Write(key)
	return hex.EncodeToString(h.Sum(nil)), nil
}
