package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/siteaudit/backend/model"
	"github.com/siteaudit/backend/scoring"
)

func createProgressBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions64(
		int64(total),
		progressbar.OptionSetWidth(40),
		progressbar.OptionEnableColorCodes(false),
		progressbar.OptionShowBytes(false),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("analyzing"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionClearOnFinish(),
	)
}

var severityOrder = []model.Severity{model.SeverityCritical, model.SeverityHigh, model.SeverityMedium, model.SeverityLow}

func severityColor(s model.Severity) func(format string, a ...interface{}) string {
	switch s {
	case model.SeverityCritical:
		return color.New(color.FgHiRed, color.Bold).SprintfFunc()
	case model.SeverityHigh:
		return color.RedString
	case model.SeverityMedium:
		return color.YellowString
	default:
		return color.CyanString
	}
}

func riskColor(level scoring.RiskLevel) func(format string, a ...interface{}) string {
	switch level {
	case scoring.RiskCritical:
		return severityColor(model.SeverityCritical)
	case scoring.RiskHigh:
		return severityColor(model.SeverityHigh)
	case scoring.RiskMedium:
		return severityColor(model.SeverityMedium)
	default:
		return color.GreenString
	}
}

// formatCounts renders e.g. "1 critical, 3 high". Zero counts are omitted.
func formatCounts(counts map[model.Severity]int) string {
	var parts []string
	for _, s := range severityOrder {
		if n := counts[s]; n > 0 {
			parts = append(parts, severityColor(s)("%d %s", n, s))
		}
	}
	if len(parts) == 0 {
		return "no findings"
	}
	return strings.Join(parts, ", ")
}

func printResult(w io.Writer, r result) {
	if r.Err != nil {
		fmt.Fprintf(w, "%s %s: %v\n", color.RedString("[error]"), r.Target, r.Err)
		return
	}
	rep := r.Report
	fmt.Fprintf(w, "%s %s\n", riskColor(rep.RiskLevel)("[%s]", rep.RiskLevel), rep.URL)
	fmt.Fprintf(w, "  security %d/100, performance %d (mobile %d, %s)\n",
		rep.SecurityScore, rep.PerformanceScore, rep.MobileScore, rep.DataSource)
	fmt.Fprintf(w, "  findings: %s\n", formatCounts(rep.SeverityCounts()))
	if rep.WordPress.IsWordPress {
		version := rep.WordPress.Version
		if version == "" {
			version = "unknown version"
		}
		fmt.Fprintf(w, "  wordpress %s, theme %q, %d plugins\n", version, rep.WordPress.Theme, rep.WordPress.PluginCount)
	}
	for _, f := range rep.SecurityIssues {
		if f.Severity == model.SeverityCritical || f.Severity == model.SeverityHigh {
			fmt.Fprintf(w, "  - %s %s\n", severityColor(f.Severity)("%-8s", f.Severity), f.Title)
		}
	}
}

func printSummary(w io.Writer, results []result) {
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	fmt.Fprintln(w, color.CyanString("─────────────────────────────────────────────────────"))
	fmt.Fprintf(w, "targets %d, analyzed %d, failed %d\n", len(results), len(results)-failed, failed)
}
