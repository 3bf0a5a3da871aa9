package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// SummaryConfig holds everything the exit summary needs beyond the
// Recorder.
type SummaryConfig struct {
	RunName   string
	ModelExe  string
	OutputDir string

	Chains   int
	Parallel int

	Succeeded int
	Failed    int
	Cancelled int

	// Draw counts from the assembled sample, 0 when assembly was
	// skipped.
	DrawsAssembled int
	ChainsParsed   int

	// Console pipeline health (lossy by design).
	LinesRead    int64
	LinesDropped int64
	Degraded     bool

	MetricsAddr string
}

// FormatExitSummary formats the end-of-run report.
func FormatExitSummary(r *Recorder, cfg SummaryConfig) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n")
	b.WriteString("                          go-stan-swarm Exit Summary\n")
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n\n")

	if cfg.Degraded {
		b.WriteString("⚠️  PROGRESS DEGRADED: parsing could not keep up with console output\n")
		fmt.Fprintf(&b, "    Lines dropped: %s of %s\n",
			FormatNumber(cfg.LinesDropped), FormatNumber(cfg.LinesRead))
		b.WriteString("    Consider a larger --pipeline-buffer; chain results are unaffected\n\n")
	}

	fmt.Fprintf(&b, "Run Name:               %s\n", cfg.RunName)
	fmt.Fprintf(&b, "Model:                  %s\n", cfg.ModelExe)
	fmt.Fprintf(&b, "Output Dir:             %s\n", cfg.OutputDir)
	fmt.Fprintf(&b, "Run Duration:           %s\n\n", FormatDuration(r.Elapsed()))

	b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
	b.WriteString("                                   Chains\n")
	b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")

	fmt.Fprintf(&b, "  Requested:            %d  (parallel %d)\n", cfg.Chains, cfg.Parallel)
	fmt.Fprintf(&b, "  Succeeded:            %d\n", cfg.Succeeded)
	if cfg.Failed > 0 {
		fmt.Fprintf(&b, "  Failed:               %d\n", cfg.Failed)
	}
	if cfg.Cancelled > 0 {
		fmt.Fprintf(&b, "  Cancelled:            %d\n", cfg.Cancelled)
	}
	b.WriteString("\n")

	if codes := r.ExitCodes(); len(codes) > 0 {
		b.WriteString("  Exit Codes:\n")
		sorted := make([]int, 0, len(codes))
		for code := range codes {
			sorted = append(sorted, code)
		}
		sort.Ints(sorted)
		for _, code := range sorted {
			fmt.Fprintf(&b, "    %3d %-10s %d\n", code, exitCodeLabel(code), codes[code])
		}
		b.WriteString("\n")
	}

	if r.Count() > 0 {
		min, max, mean := r.MinMaxMean()
		p := r.DurationPercentiles()
		b.WriteString("  Chain Wall Time:\n")
		fmt.Fprintf(&b, "    Min:                %s\n", FormatMs(min))
		fmt.Fprintf(&b, "    Mean:               %s\n", FormatMs(mean))
		fmt.Fprintf(&b, "    Max:                %s\n", FormatMs(max))
		fmt.Fprintf(&b, "    P50 (median):       %s\n", FormatMs(p.P50))
		fmt.Fprintf(&b, "    P95:                %s\n", FormatMs(p.P95))
		fmt.Fprintf(&b, "    P99:                %s\n\n", FormatMs(p.P99))
	}

	if cfg.DrawsAssembled > 0 {
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n")
		b.WriteString("                                   Sample\n")
		b.WriteString("───────────────────────────────────────────────────────────────────────────────\n\n")
		fmt.Fprintf(&b, "  Draws per chain:      %s\n", FormatNumber(int64(cfg.DrawsAssembled)))
		fmt.Fprintf(&b, "  Chains parsed:        %d\n", cfg.ChainsParsed)
		fmt.Fprintf(&b, "  Total draws:          %s\n\n",
			FormatNumber(int64(cfg.DrawsAssembled*cfg.ChainsParsed)))
	}

	if cfg.MetricsAddr != "" {
		fmt.Fprintf(&b, "Metrics were served on http://%s/metrics\n", cfg.MetricsAddr)
	}
	b.WriteString("═══════════════════════════════════════════════════════════════════════════════\n")

	return b.String()
}

func exitCodeLabel(code int) string {
	switch code {
	case 0:
		return "(clean)"
	case 1:
		return "(error)"
	case 137:
		return "(SIGKILL)"
	case 143:
		return "(SIGTERM)"
	default:
		return ""
	}
}

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatNumber formats a number with K/M suffixes for readability.
func FormatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// FormatMs formats a duration as milliseconds.
func FormatMs(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}
