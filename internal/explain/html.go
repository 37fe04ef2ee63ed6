package explain

import (
	"fmt"
	"html"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// HTML renders an importance report as a standalone table fragment for the
// dashboard, mirroring the styling of the original explanation widget.
func HTML(report *domain.ImportanceReport) string {
	if report == nil || len(report.Importances) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString(`<style>table.importance { color: #1E90FF; font-family: Arial; border-collapse: collapse; } table.importance td, table.importance th { padding: 4px 8px; border-bottom: 1px solid #ddd; }</style>`)
	b.WriteString(`<table class="importance"><thead><tr><th>Feature</th><th>Weight</th></tr></thead><tbody>`)
	for _, imp := range report.Importances {
		fmt.Fprintf(&b, `<tr><td>%s</td><td>%.4f</td></tr>`, html.EscapeString(imp.Feature), imp.Weight)
	}
	b.WriteString(`</tbody></table>`)
	return b.String()
}
