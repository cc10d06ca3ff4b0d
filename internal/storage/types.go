package storage

import "time"

// ConsentRecord is one logged consent decision. Records are append-only.
type ConsentRecord struct {
	ID         int64           `json:"id"`
	ConsentID  string          `json:"consent_id"`
	Domain     string          `json:"domain"`
	Status     string          `json:"status"`
	Categories map[string]bool `json:"categories"`
	IP         string          `json:"ip"` // anonymized
	UserAgent  string          `json:"user_agent"`
	Country    string          `json:"country"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ConsentQuery filters and paginates consent records.
// Search matches consent id, ip, status and domain (case-insensitive substring).
type ConsentQuery struct {
	Search string
	Limit  int
	Offset int
}

// ConsentStats summarizes the consent log.
type ConsentStats struct {
	Total    int64 `json:"total"`
	Accepted int64 `json:"accepted"`
	Rejected int64 `json:"rejected"`
	Other    int64 `json:"other"`
	Recent   int64 `json:"recent"` // records created at or after the requested cutoff
}

// ActivityEntry is one line of the operational activity trail.
type ActivityEntry struct {
	ID        int64     `json:"id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// TrackedCookie is a cookie known to be set by the site.
type TrackedCookie struct {
	Name         string    `json:"name"`
	Category     string    `json:"category"`
	Source       string    `json:"source"`
	Domain       string    `json:"domain"`
	DiscoveredAt time.Time `json:"discovered_at"`
	Description  string    `json:"description,omitempty"`
	Path         string    `json:"path,omitempty"`
	Expires      string    `json:"expires,omitempty"`
	Secure       bool      `json:"secure,omitempty"`
	HTTPOnly     bool      `json:"http_only,omitempty"`
	SameSite     string    `json:"same_site,omitempty"`
	File         string    `json:"file,omitempty"`
	Component    string    `json:"component,omitempty"`
}

// Token is an admin API credential. Admin tokens hold every capability.
type Token struct {
	ID           int64
	KeyHash      string
	Name         string
	IsAdmin      bool
	Capabilities []string
	CreatedAt    time.Time
}
