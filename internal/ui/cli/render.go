package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"stubindex/internal/core/ports"
	"stubindex/internal/data/history"
	"stubindex/internal/engine/index"
	"stubindex/internal/engine/stub"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#3B82F6")).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#64748B")).
			Width(14)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FBBF24")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#64748B")).
			Italic(true)
)

func printScanSummary(w io.Writer, res ports.ScanResult, took time.Duration) {
	rows := [][2]string{
		{"run", res.RunID},
		{"indexed", fmt.Sprint(res.Files)},
		{"unchanged", fmt.Sprint(res.Skipped)},
		{"malformed", fmt.Sprint(res.Malformed)},
		{"occurrences", fmt.Sprint(res.Occurrences)},
		{"took", took.Round(time.Millisecond).String()},
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("stubindex"))
	b.WriteByte('\n')
	for _, row := range rows {
		b.WriteString(labelStyle.Render(row[0]))
		b.WriteString(row[1])
		b.WriteByte('\n')
	}
	if len(res.Warnings) == 0 {
		b.WriteString(successStyle.Render("no warnings"))
		b.WriteByte('\n')
	} else {
		b.WriteString(warnStyle.Render(fmt.Sprintf("%d warnings", len(res.Warnings))))
		b.WriteByte('\n')
		for _, warning := range res.Warnings {
			b.WriteString("  " + warning + "\n")
		}
	}
	fmt.Fprint(w, b.String())
}

func printLines(w io.Writer, title string, lines []string) {
	fmt.Fprintln(w, titleStyle.Render(title))
	if len(lines) == 0 {
		fmt.Fprintln(w, statusStyle.Render("(none)"))
		return
	}
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
}

func printHeader(w io.Writer, path string, h stub.FileHeader) {
	fmt.Fprintln(w, titleStyle.Render(path))
	fmt.Fprintln(w, labelStyle.Render("package")+h.PackageFqName)
	fmt.Fprintln(w, labelStyle.Render("script")+fmt.Sprint(h.Script))
	fmt.Fprintln(w, labelStyle.Render("facade")+optional(h.FacadeFqName))
	fmt.Fprintln(w, labelStyle.Render("part")+optional(h.PartSimpleName))
	if len(h.PartNames) > 0 {
		parts := make([]string, 0, len(h.PartNames))
		for _, p := range h.PartNames {
			parts = append(parts, optional(p))
		}
		fmt.Fprintln(w, labelStyle.Render("parts")+strings.Join(parts, ", "))
	}
}

func optional(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

// printOccurrences prints one "Index<TAB>key" line per occurrence.
func printOccurrences(w io.Writer, occs []index.Occurrence) {
	for _, occ := range occs {
		fmt.Fprintf(w, "%s\t%s\n", occ.Index, occ.Key)
	}
}

func printRuns(w io.Writer, runs []history.Run) {
	fmt.Fprintln(w, titleStyle.Render("recent runs"))
	if len(runs) == 0 {
		fmt.Fprintln(w, statusStyle.Render("(none)"))
		return
	}
	for _, run := range runs {
		fmt.Fprintf(w, "%s  %s  indexed=%d unchanged=%d malformed=%d occurrences=%d warnings=%d took=%s\n",
			run.StartedAt.Local().Format(time.DateTime),
			run.RunID,
			run.Files,
			run.Skipped,
			run.Malformed,
			run.Occurrences,
			run.Warnings,
			run.Duration.Round(time.Millisecond),
		)
	}
}
