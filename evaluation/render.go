package evaluation

import (
	"fmt"
	"io"
	"strconv"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

// Render writes the matrix as a table followed by its summary metrics.
// Diagonal cells are highlighted when colours is set.
func Render(w io.Writer, title string, m *ConfusionMatrix, colours bool) {
	header := fmt.Sprintf("  ====== %s ======", title)
	if colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	_, _ = fmt.Fprintln(w, header)

	table := tablewriter.NewWriter(w)
	table.SetHeader(append(append([]string{"Expected \\ Predicted"}, m.labels...), "Total", "Recall"))
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	table.SetBorder(false)

	for i, label := range m.labels {
		row := []string{label}
		for j := range m.labels {
			cell := strconv.Itoa(m.counts[i][j])
			if colours && i == j && m.counts[i][j] > 0 {
				cell = color.FgGreen.Render(cell)
			}
			row = append(row, cell)
		}
		row = append(row, strconv.Itoa(m.rows[i]), percent(m.Class(i).Recall))
		table.Append(row)
	}
	footer := []string{"Total"}
	for j := range m.labels {
		footer = append(footer, strconv.Itoa(m.cols[j]))
	}
	footer = append(footer, strconv.Itoa(m.total), "")
	table.Append(footer)
	table.Render()

	micro := m.Micro()
	_, _ = fmt.Fprintf(w, "Agreement %s  Precision %s  Recall %s  F1 %s\n",
		percent(m.Agreement()), percent(micro.Precision), percent(micro.Recall), percent(micro.F1))
}

func percent(v float64) string {
	return fmt.Sprintf("%.1f%%", 100*v)
}
