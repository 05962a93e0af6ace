// Package report renders closure summaries for download and mail.
// Every renderer reads the summary only; none of them recomputes totals.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"systeminvoice/internal/model"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
	FormatPDF  = "pdf"
	FormatHTML = "html"
)

// Document is a rendered report ready to be written to a response or a file.
type Document struct {
	ContentType string
	Filename    string
	Body        []byte
}

// Names carries admin display names resolved from the directory. Empty
// values fall back to the admin id.
type Names struct {
	OpenedBy string
	ClosedBy string
}

// Render dispatches on format.
func Render(format string, s *model.ClosureSummary, names Names) (*Document, error) {
	base := "cierre_" + fileSafe(s.CashRegister.Code) + "_" + s.SessionID.String()[:8]
	switch strings.ToLower(format) {
	case FormatJSON:
		body, err := json.Marshal(s)
		if err != nil {
			return nil, err
		}
		return &Document{ContentType: "application/json; charset=utf-8", Filename: base + ".json", Body: body}, nil
	case FormatCSV:
		body, err := CSV(s, names)
		if err != nil {
			return nil, err
		}
		return &Document{ContentType: "text/csv; charset=utf-8", Filename: base + ".csv", Body: body}, nil
	case FormatXLSX:
		body, err := XLSX(s, names)
		if err != nil {
			return nil, err
		}
		return &Document{ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", Filename: base + ".xlsx", Body: body}, nil
	case FormatPDF:
		body, err := PDF(s, names)
		if err != nil {
			return nil, err
		}
		return &Document{ContentType: "application/pdf", Filename: base + ".pdf", Body: body}, nil
	case FormatHTML:
		body, err := HTML(s, names)
		if err != nil {
			return nil, err
		}
		return &Document{ContentType: "text/html; charset=utf-8", Filename: base + ".html", Body: body}, nil
	default:
		return nil, fmt.Errorf("report: unsupported format %q", format)
	}
}

// SupportedFormat reports whether Render accepts format.
func SupportedFormat(format string) bool {
	switch strings.ToLower(format) {
	case FormatJSON, FormatCSV, FormatXLSX, FormatPDF, FormatHTML:
		return true
	}
	return false
}

// ── Field helpers shared by the renderers ─────────────────────────────────────

var methodCaser = cases.Title(language.Spanish)

// MethodLabel turns a normalized method ("CREDIT_CARD") into a display label
// ("Credit Card").
func MethodLabel(method string) string {
	return methodCaser.String(strings.ToLower(strings.ReplaceAll(method, "_", " ")))
}

func money(d decimal.Decimal) string { return d.StringFixed(2) }

func optMoney(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.StringFixed(2)
}

func stamp(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func optStamp(t *time.Time) string {
	if t == nil {
		return ""
	}
	return stamp(*t)
}

func optString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (n Names) opener(s *model.ClosureSummary) string {
	if n.OpenedBy != "" {
		return n.OpenedBy
	}
	return s.OpenedByAdminID.String()
}

func (n Names) closer(s *model.ClosureSummary) string {
	if n.ClosedBy != "" {
		return n.ClosedBy
	}
	if s.ClosingByAdminID == nil {
		return ""
	}
	return s.ClosingByAdminID.String()
}

// field is one "Campo,Valor" row.
type field struct{ Label, Value string }

// fields lists the header rows shared by the flat exports, in display order.
func fields(s *model.ClosureSummary, names Names) []field {
	return []field{
		{"Sesion", s.SessionID.String()},
		{"Caja", s.CashRegister.Code},
		{"Nombre de caja", s.CashRegister.Name},
		{"Abierta por", names.opener(s)},
		{"Monto de apertura", money(s.OpeningAmount)},
		{"Apertura", stamp(s.OpeningAt)},
		{"Cerrada por", names.closer(s)},
		{"Monto de cierre", optMoney(s.ClosingAmount)},
		{"Cierre", optStamp(s.ClosingAt)},
		{"Notas de cierre", optString(s.ClosingNotes)},
		{"Total esperado", money(s.ExpectedTotalAmount)},
		{"Total declarado", money(s.ReportedTotalAmount)},
		{"Diferencia", money(s.DifferenceTotalAmount)},
		{"Facturas", fmt.Sprint(s.TotalInvoices)},
	}
}

var paymentHeader = []string{"Metodo", "Esperado", "Declarado", "Diferencia", "Transacciones"}

// fileSafe keeps letters, digits, '-' and '_' and replaces anything else.
func fileSafe(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
}

// Save writes the document directly under dir and returns its path. Directory
// parts of the filename are dropped.
func (d *Document) Save(dir string) (string, error) {
	name := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(d.Filename, "\\", "/")))
	if name == "/" || name == "." || name == ".." {
		return "", fmt.Errorf("report: invalid filename %q", d.Filename)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("report: create storage dir: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, d.Body, 0o644); err != nil {
		return "", fmt.Errorf("report: write file: %w", err)
	}
	return path, nil
}
