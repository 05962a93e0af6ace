package report

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"systeminvoice/internal/model"
)

// CSV writes the flat "Campo,Valor" block, a blank line, then the payment table.
func CSV(s *model.ClosureSummary, names Names) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	rows := [][]string{{"Campo", "Valor"}}
	for _, f := range fields(s, names) {
		rows = append(rows, []string{f.Label, f.Value})
	}
	rows = append(rows, []string{}, paymentHeader)
	for _, p := range s.Payments {
		rows = append(rows, []string{
			p.Method,
			money(p.ExpectedAmount),
			money(p.ReportedAmount),
			money(p.DifferenceAmount),
			fmt.Sprint(p.TransactionCount),
		})
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("report: csv: %w", err)
	}
	return buf.Bytes(), nil
}
