package report

import (
	"fmt"

	"systeminvoice/internal/model"

	"github.com/xuri/excelize/v2"
)

const (
	summarySheet  = "Cierre"
	paymentsSheet = "Pagos"
)

// XLSX renders a workbook with the header fields on one sheet and the payment
// breakdown on another. Amounts are written as numbers.
func XLSX(s *model.ClosureSummary, names Names) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, fmt.Errorf("report: xlsx: %w", err)
	}
	if _, err := f.NewSheet(paymentsSheet); err != nil {
		return nil, fmt.Errorf("report: xlsx: %w", err)
	}

	f.SetCellValue(summarySheet, "A1", "Campo")
	f.SetCellValue(summarySheet, "B1", "Valor")
	for i, fl := range fields(s, names) {
		f.SetCellValue(summarySheet, "A"+fmt.Sprint(i+2), fl.Label)
		f.SetCellValue(summarySheet, "B"+fmt.Sprint(i+2), fl.Value)
	}

	col := 'A'
	for _, h := range paymentHeader {
		f.SetCellValue(paymentsSheet, string(col)+"1", h)
		col++
	}
	for i, p := range s.Payments {
		row := fmt.Sprint(i + 2)
		expected, _ := p.ExpectedAmount.Float64()
		reported, _ := p.ReportedAmount.Float64()
		diff, _ := p.DifferenceAmount.Float64()
		f.SetCellValue(paymentsSheet, "A"+row, p.Method)
		f.SetCellValue(paymentsSheet, "B"+row, expected)
		f.SetCellValue(paymentsSheet, "C"+row, reported)
		f.SetCellValue(paymentsSheet, "D"+row, diff)
		f.SetCellValue(paymentsSheet, "E"+row, p.TransactionCount)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("report: xlsx: %w", err)
	}
	return buf.Bytes(), nil
}
