package pdf

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jung-kurt/gofpdf"

	"teamboard/internal/models"
)

// Generator renders board documents. An interface so handlers and services can fake it.
type Generator interface {
	AuditLog(w io.Writer, entries []models.AuditLogEntry, generatedAt time.Time) error
}

// DocumentGenerator draws A4 reports with gofpdf.
type DocumentGenerator struct {
	FontPath string // optional TTF with wider glyph coverage, core Helvetica otherwise
	fontName string
	utf8     bool
}

func NewDocumentGenerator(fontPath string) *DocumentGenerator {
	g := &DocumentGenerator{FontPath: fontPath, fontName: "Helvetica"}
	if fontPath != "" {
		if _, err := os.Stat(fontPath); err == nil {
			g.fontName = "Body"
			g.utf8 = true
		}
	}
	return g
}

// AuditLog writes the audit log as a table, newest entry first.
func (g *DocumentGenerator) AuditLog(w io.Writer, entries []models.AuditLogEntry, generatedAt time.Time) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Audit log", true)
	pdf.SetAuthor("teamboard", true)
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 20)
	if g.utf8 {
		pdf.AddUTF8Font(g.fontName, "", g.FontPath)
		pdf.AddUTF8Font(g.fontName, "B", g.FontPath)
	}
	tr := func(s string) string { return s }
	if !g.utf8 {
		tr = pdf.UnicodeTranslatorFromDescriptor("")
	}

	pdf.AliasNbPages("")
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont(g.fontName, "", 9)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont(g.fontName, "B", 16)
	pdf.CellFormat(0, 10, "Audit log", "", 1, "L", false, 0, "")
	pdf.SetFont(g.fontName, "", 10)
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated %s, %d entries", generatedAt.UTC().Format(time.RFC1123), len(entries)), "", 1, "L", false, 0, "")
	g.hr(pdf)

	widths := []float64{36, 40, 30, 74}
	header := []string{"Time (UTC)", "Actor", "Action", "Details"}
	pdf.SetFont(g.fontName, "B", 10)
	for i, h := range header {
		pdf.CellFormat(widths[i], 7, h, "B", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont(g.fontName, "", 9)
	for _, e := range entries {
		actor := e.ActorID
		if e.Actor != nil && e.Actor.Name != "" {
			actor = e.Actor.Name
		}
		pdf.CellFormat(widths[0], 6, e.Timestamp.UTC().Format("2006-01-02 15:04"), "", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 6, tr(truncate(actor, 24)), "", 0, "L", false, 0, "")
		pdf.CellFormat(widths[2], 6, tr(e.Action), "", 0, "L", false, 0, "")
		pdf.MultiCell(widths[3], 6, tr(e.Details), "", "L", false)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render audit log: %w", err)
	}
	return nil
}

func (g *DocumentGenerator) hr(pdf *gofpdf.Fpdf) {
	y := pdf.GetY() + 1.5
	pdf.SetLineWidth(0.2)
	pdf.Line(15, y, 195, y)
	pdf.SetY(y + 3)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
