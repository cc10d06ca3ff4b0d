package proof

import (
	"sort"

	"github.com/sipico/consent-logger/internal/classifier"
	"github.com/sipico/consent-logger/internal/consent"
	"github.com/sipico/consent-logger/internal/storage"
)

const notAvailable = "Not Available"

// Field is one labelled value on a document.
type Field struct {
	Label string
	Value string
	Mono  bool
}

// Section is a titled group of fields. Note is shown when there are no
// fields, or below them.
type Section struct {
	Title  string
	Fields []Field
	Note   string
}

// Model is the content of a proof document. Renderers only lay it out, so
// every format carries the same information.
type Model struct {
	Title      string
	Subtitle   string
	Notice     string
	Sections   []Section
	Footer     []string
	DocumentID string
	Digest     string
}

// SiteInfo identifies the data controller on documents.
type SiteInfo struct {
	Name       string
	URL        string
	AdminEmail string
}

// dateLayout renders the consent time for people.
const dateLayout = "January 2, 2006 at 15:04:05 UTC"

func buildModel(rec *storage.ConsentRecord, dig string, site SiteInfo) *Model {
	title := site.Name
	if title == "" {
		title = rec.Domain
	}
	docID := dig[:12]

	m := &Model{
		Title:      title,
		Subtitle:   "GDPR Consent Record & Proof of Compliance",
		Notice:     "GDPR Compliance Notice: This document serves as proof of user consent collection under the General Data Protection Regulation (GDPR). Retain it for audit purposes and legal compliance.",
		DocumentID: docID,
		Digest:     dig,
	}

	m.Sections = append(m.Sections, Section{
		Title: "Consent Information",
		Fields: []Field{
			{Label: "Consent ID", Value: rec.ConsentID, Mono: true},
			{Label: "Website Domain", Value: orNA(rec.Domain)},
			{Label: "Consent Status", Value: classifier.TitleCase(rec.Status)},
			{Label: "Date & Time (UTC)", Value: rec.CreatedAt.UTC().Format(dateLayout)},
			{Label: "IP Address (Anonymized)", Value: orNA(rec.IP)},
			{Label: "Country", Value: orNA(rec.Country)},
		},
	})

	categories := Section{Title: "Cookie Categories Consent"}
	names := make([]string, 0, len(rec.Categories))
	for name := range rec.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		value := "Rejected"
		if rec.Categories[name] {
			value = "Accepted"
		}
		categories.Fields = append(categories.Fields, Field{Label: classifier.TitleCase(name), Value: value})
	}
	if len(names) == 0 {
		categories.Note = "No category-specific consent data available."
	}
	m.Sections = append(m.Sections, categories)

	m.Sections = append(m.Sections, Section{
		Title: "Technical Details",
		Fields: []Field{
			{Label: "User Agent", Value: orNA(rec.UserAgent), Mono: true},
			{Label: "Browser", Value: orNA(consent.DescribeUserAgent(rec.UserAgent))},
			{Label: "Data Collection Method", Value: "Consent logger HTTP endpoint"},
			{Label: "Consent Mechanism", Value: "Explicit User Action (Click/Tap)"},
		},
	})

	controller := site.Name
	if site.URL != "" {
		if controller != "" {
			controller += " (" + site.URL + ")"
		} else {
			controller = site.URL
		}
	}
	m.Sections = append(m.Sections, Section{
		Title: "Legal Basis & Compliance",
		Fields: []Field{
			{Label: "Legal Basis (GDPR)", Value: "Article 6(1)(a) - Consent of the data subject"},
			{Label: "Cookie Law Compliance", Value: "ePrivacy Directive (2002/58/EC) - Prior Consent Required"},
			{Label: "Retention Period", Value: "Minimum 12 months from consent date"},
			{Label: "Data Controller", Value: orNA(controller)},
		},
	})

	m.Sections = append(m.Sections, Section{
		Title: "Record Verification",
		Fields: []Field{
			{Label: "Digital Fingerprint", Value: dig, Mono: true},
			{Label: "Algorithm", Value: Algorithm},
		},
		Note: "The fingerprint changes if any field of the stored record is altered. It can only be recomputed by this server.",
	})

	m.Footer = []string{"Certificate of Authenticity"}
	if site.Name != "" {
		m.Footer = append(m.Footer, "This document was generated by the consent logger of "+site.Name+".")
	} else {
		m.Footer = append(m.Footer, "This document was generated by the consent logger.")
	}
	if site.AdminEmail != "" {
		m.Footer = append(m.Footer, "For verification, contact the website administrator at "+site.AdminEmail+".")
	}
	m.Footer = append(m.Footer, "Document ID: "+docID)

	return m
}

func orNA(s string) string {
	if s == "" {
		return notAvailable
	}
	return s
}
