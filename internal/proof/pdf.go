package proof

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
	"golang.org/x/text/encoding/charmap"
)

const (
	pdfMargin = 20.0
	lineH     = 6.0
	labelW    = 55.0
)

// errUnsupportedText is returned when a value cannot be drawn with the
// core fonts, which only cover Windows-1252.
var errUnsupportedText = errors.New("text not representable in core pdf fonts")

// renderPDF lays m out on A4 pages. created fixes the document dates so
// output depends only on its inputs.
func renderPDF(m *Model, created time.Time) ([]byte, error) {
	if err := checkRepertoire(m); err != nil {
		return nil, err
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(false)
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(created)
	pdf.SetModificationDate(created)
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfMargin)

	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetTitle(tr("GDPR Consent Record - "+m.DocumentID), false)
	pdf.SetSubject("GDPR Compliance Document", false)
	pdf.SetCreator("consent-logger", false)
	pdf.SetAuthor(tr(m.Title), false)
	pdf.SetKeywords("GDPR, Consent, Cookie, Privacy, Compliance", false)

	pdf.AddPage()
	pageW, pageH := pdf.GetPageSize()
	contentW := pageW - 2*pdfMargin
	valueW := contentW - labelW

	pdf.SetFont("Helvetica", "B", 18)
	pdf.SetTextColor(0, 115, 170)
	pdf.CellFormat(contentW, 10, tr(m.Title), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 12)
	pdf.SetTextColor(102, 102, 102)
	pdf.CellFormat(contentW, 8, tr(m.Subtitle), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFillColor(255, 243, 205)
	pdf.SetTextColor(51, 51, 51)
	pdf.SetFont("Helvetica", "", 10)
	pdf.MultiCell(contentW, 5, tr(m.Notice), "1", "L", true)
	pdf.Ln(4)

	for _, sec := range m.Sections {
		pdf.SetFont("Helvetica", "B", 13)
		pdf.SetTextColor(0, 115, 170)
		pdf.CellFormat(contentW, 9, tr(sec.Title), "B", 1, "L", false, 0, "")
		pdf.Ln(2)
		pdf.SetTextColor(51, 51, 51)

		for _, f := range sec.Fields {
			valueFont, valueSize := "Helvetica", 10.0
			if f.Mono {
				valueFont, valueSize = "Courier", 9.0
			}
			value := tr(f.Value)
			pdf.SetFont(valueFont, "", valueSize)
			lines := pdf.SplitText(value, valueW-2)
			if len(lines) == 0 {
				lines = []string{""}
			}
			rowH := float64(len(lines)) * lineH

			if pdf.GetY()+rowH > pageH-pdfMargin {
				pdf.AddPage()
			}

			pdf.SetFont("Helvetica", "B", 10)
			pdf.SetFillColor(248, 249, 250)
			pdf.CellFormat(labelW, rowH, tr(f.Label), "1", 0, "LT", true, 0, "")
			pdf.SetFont(valueFont, "", valueSize)
			pdf.MultiCell(valueW, lineH, value, "1", "L", false)
		}

		if sec.Note != "" {
			pdf.SetFont("Helvetica", "I", 9)
			pdf.SetTextColor(102, 102, 102)
			pdf.MultiCell(contentW, 5, tr(sec.Note), "", "L", false)
			pdf.SetTextColor(51, 51, 51)
		}
		pdf.Ln(5)
	}

	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(102, 102, 102)
	for i, line := range m.Footer {
		style := ""
		if i == 0 {
			style = "B"
		}
		pdf.SetFont("Helvetica", style, 9)
		pdf.CellFormat(contentW, 5, tr(line), "", 1, "C", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// checkRepertoire reports the first string in m that has a rune outside
// Windows-1252.
func checkRepertoire(m *Model) error {
	texts := []string{m.Title, m.Subtitle, m.Notice, m.DocumentID}
	texts = append(texts, m.Footer...)
	for _, sec := range m.Sections {
		texts = append(texts, sec.Title, sec.Note)
		for _, f := range sec.Fields {
			texts = append(texts, f.Label, f.Value)
		}
	}

	for _, s := range texts {
		for _, r := range s {
			if _, ok := charmap.Windows1252.EncodeRune(r); !ok {
				return fmt.Errorf("%w: %q", errUnsupportedText, r)
			}
		}
	}
	return nil
}
