package service

import (
	"strings"

	"systeminvoice/internal/model"

	"github.com/shopspring/decimal"
)

// unspecifiedMethod labels ledger payment lines that carry no method.
const unspecifiedMethod = "UNSPECIFIED"

// NormalizeMethod trims and upper-cases a payment method name.
func NormalizeMethod(method string) string {
	m := strings.ToUpper(strings.TrimSpace(method))
	if m == "" {
		return unspecifiedMethod
	}
	return m
}

// Reconcile compares the ledger's expected totals for a session with what the
// operator reported. It is a pure function of its inputs.
//
// Per-method amounts are summed from the raw ledger values and rounded once to
// 2 decimals; totals are the sums of those rounded lines, so totals always
// equal the sum of the breakdown. Methods keep first-seen order from the
// ledger, followed by reported-only methods in reporting order. Opening float
// is not part of the expected amounts. Cancelled invoices are skipped.
func Reconcile(session *model.CashRegisterSession, register *model.CashRegister, invoices []model.LedgerInvoice, reported []model.ReportedPayment) model.ClosureSummary {
	type acc struct {
		expected decimal.Decimal
		reported decimal.Decimal
		count    int
	}
	var order []string
	lines := map[string]*acc{}
	line := func(method string) *acc {
		a, ok := lines[method]
		if !ok {
			a = &acc{}
			lines[method] = a
			order = append(order, method)
		}
		return a
	}

	totalInvoices := 0
	for _, inv := range invoices {
		if strings.EqualFold(strings.TrimSpace(inv.Status), model.InvoiceStatusCancelled) {
			continue
		}
		totalInvoices++
		for _, p := range inv.Payments {
			a := line(NormalizeMethod(p.Method))
			a.expected = a.expected.Add(p.Amount)
			a.count += p.Count
		}
	}
	for _, r := range reported {
		a := line(NormalizeMethod(r.Method))
		a.reported = a.reported.Add(r.Amount)
	}

	summary := model.ClosureSummary{
		SessionID:           session.ID,
		OpenedByAdminID:     session.AdminUserID,
		OpeningAmount:       session.OpeningAmount.Round(2),
		OpeningAt:           session.OpeningAt,
		ClosingByAdminID:    session.ClosingAdminUserID,
		ClosingAmount:       session.ClosingAmount,
		ClosingAt:           session.ClosingAt,
		ClosingNotes:        session.ClosingNotes,
		ExpectedTotalAmount: decimal.Zero,
		ReportedTotalAmount: decimal.Zero,
		TotalInvoices:       totalInvoices,
		Payments:            make([]model.PaymentBreakdown, 0, len(order)),
	}
	if register != nil {
		summary.CashRegister = model.ClosureRegister{ID: register.ID, Code: register.Code, Name: register.Name}
	} else {
		summary.CashRegister = model.ClosureRegister{ID: session.CashRegisterID}
	}

	for _, method := range order {
		a := lines[method]
		expected := a.expected.Round(2)
		rep := a.reported.Round(2)
		summary.Payments = append(summary.Payments, model.PaymentBreakdown{
			Method:           method,
			ExpectedAmount:   expected,
			ReportedAmount:   rep,
			DifferenceAmount: rep.Sub(expected),
			TransactionCount: a.count,
		})
		summary.ExpectedTotalAmount = summary.ExpectedTotalAmount.Add(expected)
		summary.ReportedTotalAmount = summary.ReportedTotalAmount.Add(rep)
	}
	summary.DifferenceTotalAmount = summary.ReportedTotalAmount.Sub(summary.ExpectedTotalAmount)
	return summary
}
