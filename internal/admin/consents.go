package admin

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sipico/consent-logger/internal/consent"
	"github.com/sipico/consent-logger/internal/proof"
	"github.com/sipico/consent-logger/internal/storage"
)

// PageSizes are the accepted per_page values.
var PageSizes = []int{10, 25, 50, 100}

// DefaultStatsDays is the window of the recent count in consent stats.
const DefaultStatsDays = 30

// ConsentPage is one page of the consent log.
type ConsentPage struct {
	Records    []*storage.ConsentRecord `json:"records"`
	Total      int64                    `json:"total"`
	Page       int                      `json:"page"`
	PerPage    int                      `json:"per_page"`
	TotalPages int64                    `json:"total_pages"`
}

// HandleListConsents searches the consent log, newest first.
// GET /api/consents?search=&page=&per_page=
func (h *Handler) HandleListConsents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, err := positiveInt(q.Get("page"), 1)
	if err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "page must be a positive integer")
		return
	}
	perPage, err := positiveInt(q.Get("per_page"), PageSizes[0])
	if err != nil || !slices.Contains(PageSizes, perPage) {
		WriteErrorWithHint(w, http.StatusBadRequest, ErrCodeInvalidRequest,
			"Invalid per_page", "Use one of 10, 25, 50, 100")
		return
	}

	records, total, err := h.svc.Consents.SearchConsents(r.Context(), storage.ConsentQuery{
		Search: q.Get("search"),
		Limit:  perPage,
		Offset: (page - 1) * perPage,
	})
	if err != nil {
		h.internalError(w, "failed to search consent records", err)
		return
	}

	writeJSON(w, http.StatusOK, ConsentPage{
		Records:    records,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: (total + int64(perPage) - 1) / int64(perPage),
	})
}

// csvHeader is the first row of consent exports.
var csvHeader = []string{"id", "consent_id", "domain", "status", "categories", "ip", "user_agent", "country", "created_at"}

// HandleExportConsents streams matching records as CSV.
// GET /api/consents/export?search=
func (h *Handler) HandleExportConsents(w http.ResponseWriter, r *http.Request) {
	filename := "consent-log-" + h.now().UTC().Format("20060102") + ".csv"
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.Header().Set("Cache-Control", "no-store")

	cw := csv.NewWriter(w)
	//nolint:errcheck // Response write errors are unrecoverable
	cw.Write(csvHeader)

	rows := 0
	err := h.svc.Consents.EachConsent(r.Context(), r.URL.Query().Get("search"), func(rec *storage.ConsentRecord) error {
		rows++
		return cw.Write(csvRow(rec))
	})
	cw.Flush()
	if err != nil {
		// Headers are gone; a truncated file is all that can be signalled.
		h.logger.Error("consent export aborted", "rows", rows, "error", err)
		return
	}
	h.logger.Info("consent log exported", "rows", rows)
}

func csvRow(rec *storage.ConsentRecord) []string {
	cats, _ := json.Marshal(rec.Categories)
	return []string{
		strconv.FormatInt(rec.ID, 10),
		csvSafe(rec.ConsentID),
		csvSafe(rec.Domain),
		csvSafe(rec.Status),
		string(cats),
		rec.IP,
		csvSafe(rec.UserAgent),
		csvSafe(rec.Country),
		rec.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// csvSafe prefixes values spreadsheet software would treat as formulas.
func csvSafe(s string) string {
	if s != "" && strings.ContainsRune("=+-@\t\r", rune(s[0])) {
		return "'" + s
	}
	return s
}

// StatsResponse is the consent log summary.
type StatsResponse struct {
	*storage.ConsentStats
	Days int `json:"days"`
}

// HandleConsentStats counts records by status.
// GET /api/consents/stats?days=30
func (h *Handler) HandleConsentStats(w http.ResponseWriter, r *http.Request) {
	days, err := positiveInt(r.URL.Query().Get("days"), DefaultStatsDays)
	if err != nil {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "days must be a positive integer")
		return
	}

	since := h.now().AddDate(0, 0, -days)
	stats, err := h.svc.Consents.ConsentStats(r.Context(), since)
	if err != nil {
		h.internalError(w, "failed to compute consent stats", err)
		return
	}
	writeJSON(w, http.StatusOK, StatsResponse{ConsentStats: stats, Days: days})
}

// ConsentDetail is the view of one consent id.
type ConsentDetail struct {
	ConsentID string                   `json:"consent_id"`
	Latest    *storage.ConsentRecord   `json:"latest"`
	Browser   string                   `json:"browser"`
	History   []*storage.ConsentRecord `json:"history"`
}

// HandleGetConsent returns the latest decision and full history of a
// consent id.
// GET /api/consents/{consentID}
func (h *Handler) HandleGetConsent(w http.ResponseWriter, r *http.Request) {
	consentID := consentIDParam(r)

	history, err := h.svc.Consents.ConsentHistory(r.Context(), consentID)
	if err != nil {
		h.internalError(w, "failed to load consent history", err)
		return
	}
	if len(history) == 0 {
		WriteError(w, http.StatusNotFound, ErrCodeNotFound, "No consent record for this id")
		return
	}

	writeJSON(w, http.StatusOK, ConsentDetail{
		ConsentID: consentID,
		Latest:    history[0],
		Browser:   consent.DescribeUserAgent(history[0].UserAgent),
		History:   history,
	})
}

// HandleDownloadProof renders the proof of consent document.
// GET /api/consents/{consentID}/proof?format=pdf|html
func (h *Handler) HandleDownloadProof(w http.ResponseWriter, r *http.Request) {
	consentID := consentIDParam(r)

	name := r.URL.Query().Get("format")
	if name == "" {
		name = string(h.svc.ProofFormat)
	}
	format, err := proof.ParseFormat(name)
	if err != nil {
		WriteErrorWithHint(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error(), "Use format=pdf or format=html")
		return
	}

	doc, err := h.svc.Proofs.Generate(r.Context(), consentID, format)
	if err != nil {
		if errors.Is(err, proof.ErrNotFound) {
			WriteError(w, http.StatusNotFound, ErrCodeNotFound, "No consent record for this id")
			return
		}
		h.internalError(w, "failed to generate proof", err)
		return
	}

	h.logger.Info("proof generated", "format", doc.Format, "document_id", doc.DocumentID)
	h.record(r.Context(), "Proof of consent "+doc.DocumentID+" downloaded")

	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+doc.Filename+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(doc.Body)))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Proof-Digest", doc.Digest)
	w.Header().Set("X-Document-ID", doc.DocumentID)
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // Response write errors are unrecoverable
	w.Write(doc.Body)
}

// VerifyProofRequest is the body of POST .../proof/verify.
type VerifyProofRequest struct {
	Digest string `json:"digest"`
}

// VerifyProofResponse reports whether a digest matches the stored record.
type VerifyProofResponse struct {
	ConsentID string `json:"consent_id"`
	Valid     bool   `json:"valid"`
}

// HandleVerifyProof checks a digest printed on a proof document against
// the current record.
// POST /api/consents/{consentID}/proof/verify
func (h *Handler) HandleVerifyProof(w http.ResponseWriter, r *http.Request) {
	consentID := consentIDParam(r)

	var req VerifyProofRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Digest) == "" {
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "Body must be {\"digest\": \"...\"}")
		return
	}

	valid, err := h.svc.Proofs.Verify(r.Context(), consentID, req.Digest)
	if err != nil {
		if errors.Is(err, proof.ErrNotFound) {
			WriteError(w, http.StatusNotFound, ErrCodeNotFound, "No consent record for this id")
			return
		}
		h.internalError(w, "failed to verify proof", err)
		return
	}
	writeJSON(w, http.StatusOK, VerifyProofResponse{ConsentID: consentID, Valid: valid})
}

// consentIDParam returns the consentID path segment. Chi matches on the
// raw path when the request carries escapes such as %2F, leaving the
// segment escaped.
func consentIDParam(r *http.Request) string {
	id := chi.URLParam(r, "consentID")
	if r.URL.RawPath == "" {
		return id
	}
	if unescaped, err := url.PathUnescape(id); err == nil {
		return unescaped
	}
	return id
}

// positiveInt parses s, returning def when s is empty.
func positiveInt(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, errors.New("must be positive")
	}
	return n, nil
}
