package report

// pdf.go renders the closure as an A4 sheet:
//   - register and session header
//   - opening / closing block
//   - payment method table (expected, reported, difference, count)
//   - totals with the difference in bold

import (
	"bytes"
	"fmt"

	"systeminvoice/internal/model"

	"github.com/go-pdf/fpdf"
)

func PDF(s *model.ClosureSummary, names Names) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 30

	// ── Header ───────────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "B", 15)
	pdf.CellFormat(contentW, 8, tr("Cierre de caja "+s.CashRegister.Code), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(contentW, 5, tr(s.CashRegister.Name), "", 1, "L", false, 0, "")
	pdf.CellFormat(contentW, 5, "Sesion "+s.SessionID.String(), "", 1, "L", false, 0, "")
	pdf.Ln(3)

	// ── Opening / closing ────────────────────────────────────────────────────
	label := contentW * 0.35
	value := contentW - label
	for _, f := range fields(s, names)[3:10] {
		pdf.SetFont("Helvetica", "B", 9)
		pdf.CellFormat(label, 6, tr(f.Label), "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		pdf.CellFormat(value, 6, tr(f.Value), "", 1, "L", false, 0, "")
	}
	pdf.Ln(3)

	// ── Payment table ────────────────────────────────────────────────────────
	widths := []float64{contentW * 0.28, contentW * 0.18, contentW * 0.18, contentW * 0.18, contentW * 0.18}
	pdf.SetFont("Helvetica", "B", 9)
	for i, h := range paymentHeader {
		align := "R"
		if i == 0 {
			align = "L"
		}
		pdf.CellFormat(widths[i], 7, h, "B", 0, align, false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, p := range s.Payments {
		pdf.CellFormat(widths[0], 6, tr(MethodLabel(p.Method)), "", 0, "L", false, 0, "")
		pdf.CellFormat(widths[1], 6, "$"+money(p.ExpectedAmount), "", 0, "R", false, 0, "")
		pdf.CellFormat(widths[2], 6, "$"+money(p.ReportedAmount), "", 0, "R", false, 0, "")
		pdf.CellFormat(widths[3], 6, "$"+money(p.DifferenceAmount), "", 0, "R", false, 0, "")
		pdf.CellFormat(widths[4], 6, fmt.Sprint(p.TransactionCount), "", 1, "R", false, 0, "")
	}
	if len(s.Payments) == 0 {
		pdf.SetFont("Helvetica", "I", 9)
		pdf.CellFormat(contentW, 6, "Sin movimientos", "", 1, "C", false, 0, "")
	}

	pdf.Ln(2)
	pdf.Line(15, pdf.GetY(), pageW-15, pdf.GetY())
	pdf.Ln(2)

	// ── Totals ───────────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(label, 6, "Total esperado:", "", 0, "L", false, 0, "")
	pdf.CellFormat(value, 6, "$"+money(s.ExpectedTotalAmount), "", 1, "R", false, 0, "")
	pdf.CellFormat(label, 6, "Total declarado:", "", 0, "L", false, 0, "")
	pdf.CellFormat(value, 6, "$"+money(s.ReportedTotalAmount), "", 1, "R", false, 0, "")
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(label, 7, "Diferencia:", "", 0, "L", false, 0, "")
	pdf.CellFormat(value, 7, "$"+money(s.DifferenceTotalAmount), "", 1, "R", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(contentW, 6, fmt.Sprintf("Facturas: %d", s.TotalInvoices), "", 1, "L", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("report: pdf: %w", err)
	}
	return buf.Bytes(), nil
}
