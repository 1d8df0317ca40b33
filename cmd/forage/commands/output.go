package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/kemicky/forage/pkg/forageable"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printRecords writes records as a table, or as a JSON array with --json.
func printRecords(w io.Writer, records []forageable.Forageable) error {
	if jsonOutput {
		return writeJSON(w, records)
	}

	if len(records) == 0 {
		_, err := fmt.Fprintln(w, mutedStyle.Render("No forageables recorded."))
		return err
	}

	rows := make([][]string, 0, len(records))
	for _, f := range records {
		rows = append(rows, []string{
			strconv.FormatInt(f.ID, 10),
			f.Name,
			f.Address,
			seasonLabel(f.InSeason),
			f.Notes,
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers("ID", "NAME", "ADDRESS", "SEASON", "NOTES").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})

	_, err := fmt.Fprintln(w, t.Render())
	return err
}

// printRecord writes one record as key/value lines, or as a JSON object.
// A nil record prints as JSON null or a placeholder line.
func printRecord(w io.Writer, f *forageable.Forageable) error {
	if jsonOutput {
		return writeJSON(w, f)
	}
	if f == nil {
		_, err := fmt.Fprintln(w, mutedStyle.Render("(no record)"))
		return err
	}

	lines := [][2]string{
		{"ID", strconv.FormatInt(f.ID, 10)},
		{"Name", f.Name},
		{"Address", f.Address},
		{"Season", seasonLabel(f.InSeason)},
		{"Notes", f.Notes},
	}
	for _, l := range lines {
		if _, err := fmt.Fprintf(w, "%s %s\n", headerStyle.Width(10).Render(l[0]+":"), l[1]); err != nil {
			return err
		}
	}
	return nil
}

func seasonLabel(inSeason bool) string {
	if inSeason {
		return "in season"
	}
	return "out of season"
}
