package report

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"systeminvoice/internal/model"
)

//go:embed templates/closure.html
var templateFS embed.FS

var closureTemplate = template.Must(
	template.New("closure.html").
		Funcs(template.FuncMap{
			"money":  money,
			"method": MethodLabel,
			"negative": func(v string) bool {
				return len(v) > 0 && v[0] == '-'
			},
		}).
		ParseFS(templateFS, "templates/closure.html"),
)

type htmlView struct {
	Summary *model.ClosureSummary
	Fields  []field
	Header  []string
}

// HTML renders the human-readable closure page.
func HTML(s *model.ClosureSummary, names Names) ([]byte, error) {
	var buf bytes.Buffer
	view := htmlView{Summary: s, Fields: fields(s, names), Header: paymentHeader}
	if err := closureTemplate.Execute(&buf, view); err != nil {
		return nil, fmt.Errorf("report: html: %w", err)
	}
	return buf.Bytes(), nil
}
