package proof

import (
	"bytes"
	"context"
	"errors"
	"html"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipico/consent-logger/internal/storage"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

var testSite = SiteInfo{Name: "Example Shop", URL: "https://shop.example.com", AdminEmail: "privacy@example.com"}

func newTestGenerator(t *testing.T) (*Generator, *storage.SQLStorage, *storage.ConsentRecord) {
	t.Helper()

	s, err := storage.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	rec := &storage.ConsentRecord{
		ConsentID:  "6f1c2a9e-4b1d-4f4e-9a55-1f2e3d4c5b6a",
		Domain:     "shop.example.com",
		Status:     "rejected",
		Categories: map[string]bool{"necessary": true, "functional": false, "analytics": false, "advertisement": false},
		IP:         "203.0.113.0",
		UserAgent:  "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:128.0) Gecko/20100101 Firefox/128.0",
		Country:    "NL",
		CreatedAt:  time.Date(2026, 4, 1, 9, 30, 15, 123456000, time.UTC),
	}
	_, err = s.InsertConsent(context.Background(), rec)
	require.NoError(t, err)

	g, err := NewGenerator(s, testSecret, testSite)
	require.NoError(t, err)
	return g, s, rec
}

func TestNewGenerator_RejectsShortSecret(t *testing.T) {
	t.Parallel()

	_, err := NewGenerator(nil, []byte("short"), SiteInfo{})
	assert.ErrorIs(t, err, ErrSecretTooShort)
}

func TestGenerate_NotFound(t *testing.T) {
	t.Parallel()
	g, _, _ := newTestGenerator(t)

	_, err := g.Generate(context.Background(), "does-not-exist", FormatPDF)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = g.Verify(context.Background(), "does-not-exist", "abc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGenerate_Deterministic(t *testing.T) {
	t.Parallel()
	g, _, rec := newTestGenerator(t)
	ctx := context.Background()

	for _, format := range []Format{FormatPDF, FormatHTML} {
		a, err := g.Generate(ctx, rec.ConsentID, format)
		require.NoError(t, err)
		b, err := g.Generate(ctx, rec.ConsentID, format)
		require.NoError(t, err)

		assert.Equal(t, a.Digest, b.Digest, format)
		assert.True(t, bytes.Equal(a.Body, b.Body), "%s output differs between runs", format)
		assert.Len(t, a.Digest, 64)
		assert.Equal(t, a.Digest[:12], a.DocumentID)
	}
}

func TestGenerate_DigestDependsOnSecret(t *testing.T) {
	t.Parallel()
	g, s, rec := newTestGenerator(t)

	other, err := NewGenerator(s, []byte("a-completely-different-secret-value!"), testSite)
	require.NoError(t, err)

	d1, err := g.Digest(context.Background(), rec.ConsentID)
	require.NoError(t, err)
	d2, err := other.Digest(context.Background(), rec.ConsentID)
	require.NoError(t, err)
	assert.NotEqual(t, d1, d2)
}

func TestDigest_ChangesWithAnyField(t *testing.T) {
	t.Parallel()

	key, err := deriveKey(testSecret)
	require.NoError(t, err)

	base := func() *storage.ConsentRecord {
		return &storage.ConsentRecord{
			ID: 1, ConsentID: "c", Domain: "d", Status: "accepted",
			Categories: map[string]bool{"analytics": true},
			IP:         "198.51.100.0", UserAgent: "ua", Country: "DE",
			CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		}
	}
	want, err := digest(base(), key)
	require.NoError(t, err)

	mutations := map[string]func(*storage.ConsentRecord){
		"id":         func(r *storage.ConsentRecord) { r.ID = 2 },
		"consent_id": func(r *storage.ConsentRecord) { r.ConsentID = "x" },
		"domain":     func(r *storage.ConsentRecord) { r.Domain = "x" },
		"status":     func(r *storage.ConsentRecord) { r.Status = "rejected" },
		"categories": func(r *storage.ConsentRecord) { r.Categories["analytics"] = false },
		"ip":         func(r *storage.ConsentRecord) { r.IP = "198.51.101.0" },
		"user_agent": func(r *storage.ConsentRecord) { r.UserAgent = "other" },
		"country":    func(r *storage.ConsentRecord) { r.Country = "FR" },
		"created_at": func(r *storage.ConsentRecord) { r.CreatedAt = r.CreatedAt.Add(time.Microsecond) },
	}
	for name, mutate := range mutations {
		rec := base()
		mutate(rec)
		got, err := digest(rec, key)
		require.NoError(t, err)
		assert.NotEqual(t, want, got, "digest unchanged after modifying %s", name)
	}

	// Key order and time zone do not affect the canonical form.
	same := base()
	same.CreatedAt = same.CreatedAt.In(time.FixedZone("CET", 3600))
	got, err := digest(same, key)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCanonical_Format(t *testing.T) {
	t.Parallel()

	b, err := Canonical(&storage.ConsentRecord{
		ID: 7, ConsentID: "abc", Status: "accepted",
		Categories: map[string]bool{"b": true, "a": false},
		CreatedAt:  time.Date(2026, 2, 3, 4, 5, 6, 7000, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t,
		`{"id":7,"consent_id":"abc","domain":"","status":"accepted","categories":{"a":false,"b":true},"ip":"","user_agent":"","country":"","created_at":"2026-02-03T04:05:06.000007Z"}`,
		string(b))
}

func TestGenerate_HTMLContainsAllFields(t *testing.T) {
	t.Parallel()
	g, _, rec := newTestGenerator(t)

	doc, err := g.Generate(context.Background(), rec.ConsentID, FormatHTML)
	require.NoError(t, err)

	assert.Equal(t, FormatHTML, doc.Format)
	assert.Equal(t, "text/html; charset=utf-8", doc.ContentType)
	assert.Equal(t, "consent-log-"+rec.ConsentID+".html", doc.Filename)

	body := html.UnescapeString(string(doc.Body))
	m := buildModel(rec, doc.Digest, testSite)
	for _, sec := range m.Sections {
		assert.Contains(t, body, sec.Title)
		for _, f := range sec.Fields {
			assert.Contains(t, body, f.Label)
			assert.Contains(t, body, f.Value)
		}
	}
	for _, want := range []string{
		"Rejected", "Necessary", "203.0.113.0", "April 1, 2026 at 09:30:15 UTC",
		"Firefox", "Article 6(1)(a)", "2002/58/EC",
		"Minimum 12 months", "Example Shop (https://shop.example.com)", "privacy@example.com",
		"Document ID: " + doc.DocumentID, "Certificate of Authenticity",
	} {
		assert.Contains(t, body, want)
	}
	assert.NotContains(t, body, "Generated on", "documents must not carry a generation timestamp")
}

func TestGenerate_PDF(t *testing.T) {
	t.Parallel()
	g, _, rec := newTestGenerator(t)

	doc, err := g.Generate(context.Background(), rec.ConsentID, FormatPDF)
	require.NoError(t, err)

	assert.Equal(t, FormatPDF, doc.Format)
	assert.Equal(t, "application/pdf", doc.ContentType)
	assert.Equal(t, "consent-log-"+rec.ConsentID+".pdf", doc.Filename)
	assert.True(t, bytes.HasPrefix(doc.Body, []byte("%PDF-")))
	assert.Contains(t, string(doc.Body), "Document ID: "+doc.DocumentID, "uncompressed pdf should carry the document id")
	assert.Contains(t, string(doc.Body), rec.ConsentID)
}

func TestGenerate_FallsBackToHTML(t *testing.T) {
	t.Parallel()
	g, _, rec := newTestGenerator(t)
	g.renderPDF = func(*Model, *storage.ConsentRecord) ([]byte, error) {
		return nil, errors.New("font missing")
	}

	doc, err := g.Generate(context.Background(), rec.ConsentID, FormatPDF)
	require.NoError(t, err)
	assert.Equal(t, FormatHTML, doc.Format)
	assert.True(t, strings.HasSuffix(doc.Filename, ".html"))
	assert.Contains(t, string(doc.Body), doc.Digest)
}

func TestGenerate_NonLatinTextFallsBackToHTML(t *testing.T) {
	t.Parallel()
	g, s, _ := newTestGenerator(t)
	ctx := context.Background()

	_, err := s.InsertConsent(ctx, &storage.ConsentRecord{
		ConsentID:  "согласие-42",
		Status:     "custom",
		Categories: map[string]bool{"统计": true},
		CreatedAt:  time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	doc, err := g.Generate(ctx, "согласие-42", FormatPDF)
	require.NoError(t, err)

	assert.Equal(t, FormatHTML, doc.Format)
	assert.Equal(t, "text/html; charset=utf-8", doc.ContentType)
	assert.Equal(t, "consent-log-________-42.html", doc.Filename)
	assert.Contains(t, string(doc.Body), "согласие-42")
	assert.Contains(t, string(doc.Body), "统计")
}

func TestRenderPDF_RejectsTextOutsideCoreFonts(t *testing.T) {
	t.Parallel()

	m := &Model{Title: "Consent", Sections: []Section{{Fields: []Field{{Label: "Consent ID", Value: "согласие-42"}}}}}
	_, err := renderPDF(m, time.Now())
	require.ErrorIs(t, err, errUnsupportedText)

	m.Sections[0].Fields[0].Value = "café – ½ € “quoted”"
	body, err := renderPDF(m, time.Now())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(body, []byte("%PDF-")))
}

func TestGenerate_UsesLatestRecord(t *testing.T) {
	t.Parallel()
	g, s, rec := newTestGenerator(t)
	ctx := context.Background()

	before, err := g.Digest(ctx, rec.ConsentID)
	require.NoError(t, err)

	_, err = s.InsertConsent(ctx, &storage.ConsentRecord{
		ConsentID: rec.ConsentID,
		Status:    "accepted",
		CreatedAt: rec.CreatedAt.Add(time.Hour),
	})
	require.NoError(t, err)

	doc, err := g.Generate(ctx, rec.ConsentID, FormatHTML)
	require.NoError(t, err)
	assert.NotEqual(t, before, doc.Digest)
	assert.Contains(t, string(doc.Body), "Accepted")
}

func TestVerify(t *testing.T) {
	t.Parallel()
	g, _, rec := newTestGenerator(t)
	ctx := context.Background()

	d, err := g.Digest(ctx, rec.ConsentID)
	require.NoError(t, err)

	ok, err := g.Verify(ctx, rec.ConsentID, strings.ToUpper(d))
	require.NoError(t, err)
	assert.True(t, ok)

	last := byte('0')
	if d[63] == '0' {
		last = '1'
	}
	ok, err = g.Verify(ctx, rec.ConsentID, d[:63]+string(last))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Format{"": FormatPDF, "PDF": FormatPDF, " html ": FormatHTML} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("docx")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestSafeFilename(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "a_b_c-1.2", safeFilename(`a"b/c-1.2`))
}
