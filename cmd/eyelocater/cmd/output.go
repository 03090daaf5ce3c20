package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/emalab/eyelocater/internal/ports"
)

// ANSI color codes for terminal output.
const (
	colorReset   = "\033[0m"
	colorBold    = "\033[1m"
	colorCyan    = "\033[36m"
	colorMagenta = "\033[35m"
	colorGreen   = "\033[32m"
	colorYellow  = "\033[33m"
	colorGray    = "\033[90m"
)

// formatRun renders a finished run for terminal display.
//
//	⚡ 48213 cells → retina │ 12.4s
//	  rod             31022  64.3%
//	  bipolar cell     8120  16.8%
//	  ...
func formatRun(run *ports.Run, cached bool) string {
	var sb strings.Builder

	elapsed := time.Duration(run.ElapsedMs) * time.Millisecond
	sb.WriteString(fmt.Sprintf("%s⚡ %d cells → %s%s │ %s",
		colorBold, len(run.CellIDs), run.Region, colorReset, elapsed))
	if cached {
		sb.WriteString(fmt.Sprintf(" %s(cached)%s", colorGray, colorReset))
	}
	sb.WriteString("\n")

	sb.WriteString(formatCounts(run.LabelCounts, len(run.CellIDs)))

	for _, f := range run.PlotFiles {
		sb.WriteString(fmt.Sprintf("  %swrote%s %s\n", colorGreen, colorReset, f))
	}
	return sb.String()
}

// formatCounts renders per-label cell counts, most populous first.
func formatCounts(counts map[string]int, total int) string {
	type entry struct {
		label string
		n     int
	}
	entries := make([]entry, 0, len(counts))
	width := 0
	for label, n := range counts {
		entries = append(entries, entry{label, n})
		if len(label) > width {
			width = len(label)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].n != entries[j].n {
			return entries[i].n > entries[j].n
		}
		return entries[i].label < entries[j].label
	})

	var sb strings.Builder
	for _, e := range entries {
		pct := 0.0
		if total > 0 {
			pct = 100 * float64(e.n) / float64(total)
		}
		sb.WriteString(fmt.Sprintf("  %s%-*s%s  %7d  %5.1f%%\n",
			colorCyan, width, e.label, colorReset, e.n, pct))
	}
	return sb.String()
}

// formatSummaries renders the run listing.
func formatSummaries(runs []ports.RunSummary) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s⚡ %d runs%s\n", colorBold, len(runs), colorReset))
	for _, r := range runs {
		ts := time.Unix(r.StartedAt, 0).Format("2006-01-02 15:04:05")
		sb.WriteString(fmt.Sprintf("  %s%s%s  %s  %s%s%s  %d cells  %s\n",
			colorGray, ts, colorReset,
			r.ID,
			colorMagenta, r.Region, colorReset,
			r.CellCount, r.DataPath))
	}
	return sb.String()
}
