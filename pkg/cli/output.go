package cli

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/devicelab-dev/tagscout/pkg/clicklog"
	"github.com/devicelab-dev/tagscout/pkg/core"
	"github.com/devicelab-dev/tagscout/pkg/coverage"
	"github.com/devicelab-dev/tagscout/pkg/crawler"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// colorsEnabled determines if ANSI colors should be used
var colorsEnabled = true

func init() {
	// Respect NO_COLOR environment variable
	if os.Getenv("NO_COLOR") != "" {
		colorsEnabled = false
		return
	}
	if fileInfo, err := os.Stdout.Stat(); err == nil {
		if (fileInfo.Mode() & os.ModeCharDevice) == 0 {
			colorsEnabled = false
		}
	}
}

// color returns the color code if colors are enabled, empty string otherwise
func color(c string) string {
	if colorsEnabled {
		return c
	}
	return ""
}

func printCrawlSummary(res *crawler.Result, clickLog string) {
	statusColor := colorGreen
	switch res.Status {
	case core.RunInterrupted:
		statusColor = colorYellow
	case core.RunFailed:
		statusColor = colorRed
	}

	fmt.Println()
	fmt.Printf("  %sCrawl %s%s%s in %s\n", color(colorBold), color(statusColor), res.Status, color(colorReset), res.Duration().Round(time.Millisecond))
	if res.Error != "" {
		fmt.Printf("  %s%s%s\n", color(colorRed), res.Error, color(colorReset))
	}
	fmt.Printf("  Screens: %d   Taps: %d   Effective: %s%d%s   Ineffective: %d\n",
		res.Screens, res.Taps, color(colorGreen), res.Effective, color(colorReset), res.Ineffective)

	reasons := make([]string, 0, len(res.Reasons))
	for r := range res.Reasons {
		reasons = append(reasons, string(r))
	}
	sort.Strings(reasons)
	for _, r := range reasons {
		fmt.Printf("    %s%-18s%s %d\n", color(colorGray), r, color(colorReset), res.Reasons[clicklog.Reason(r)])
	}
	fmt.Printf("  Popups: %d   Back failures: %d   Abandoned: %d\n", res.PopupsDismissed, res.BackFailures, res.Abandoned)
	fmt.Printf("  Click log: %s\n", clickLog)
}

func printCoverageSummary(rep *coverage.Report, jsonPath, htmlPath string) {
	gradeColor := colorRed
	switch rep.Score.Grade {
	case coverage.GradeExcellent, coverage.GradeGood:
		gradeColor = colorGreen
	case coverage.GradeFair, coverage.GradePassing:
		gradeColor = colorYellow
	}

	fmt.Println()
	fmt.Printf("  %sCoverage%s %.1f%% (%d/%d valid clicks)\n", color(colorBold), color(colorReset),
		rep.CoverageRate, rep.Matched, rep.ValidClicks)
	fmt.Printf("  Score %.1f  %s%s%s\n", rep.Score.Total, color(gradeColor), rep.Score.Grade, color(colorReset))
	fmt.Printf("  Requests: %d (tag %d, business %d, noise %d)   Events: %d types\n",
		rep.TotalRequests, rep.TagRequests, rep.BusinessRequests, rep.NoiseRequests, len(rep.Events))
	for _, w := range rep.Warnings {
		fmt.Printf("  %s! %s%s\n", color(colorYellow), w, color(colorReset))
	}
	if jsonPath != "" {
		fmt.Printf("  %sJSON:%s %s\n", color(colorCyan), color(colorReset), jsonPath)
	}
	if htmlPath != "" {
		fmt.Printf("  %sHTML:%s %s\n", color(colorCyan), color(colorReset), htmlPath)
	}
}
