package metrics

import (
	"fmt"
	"io"
	"sort"
	"time"
)

// WriteSummary writes a plain text report of a finished run.
func WriteSummary(w io.Writer, snap Snapshot) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "── Run ───────────────────────────────────────────────")
	if !snap.StartTime.IsZero() {
		fmt.Fprintf(w, "  Start:         %s\n", snap.StartTime.Format("2006-01-02 15:04:05"))
	}
	if !snap.EndTime.IsZero() {
		fmt.Fprintf(w, "  End:           %s\n", snap.EndTime.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(w, "  Duration:      %s\n", formatDuration(snap.Duration))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "── Requests ──────────────────────────────────────────")
	fmt.Fprintf(w, "  Total:         %d\n", snap.TotalRequests)
	fmt.Fprintf(w, "  Successful:    %d\n", snap.SuccessRequests)
	fmt.Fprintf(w, "  Failed:        %d\n", snap.FailedRequests)
	fmt.Fprintf(w, "  Success Rate:  %.2f%%\n", snap.SuccessRate)
	fmt.Fprintf(w, "  Throughput:    %.2f req/s\n", snap.QPS)
	fmt.Fprintf(w, "  Transferred:   %s\n", formatBytes(snap.TotalBytes))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "── Latency ───────────────────────────────────────────")
	fmt.Fprintf(w, "  Min:  %12s\n", formatLatency(snap.MinLatency))
	fmt.Fprintf(w, "  Avg:  %12s\n", formatLatency(snap.AvgLatency))
	fmt.Fprintf(w, "  P50:  %12s\n", formatLatency(snap.P50Latency))
	fmt.Fprintf(w, "  P95:  %12s\n", formatLatency(snap.P95Latency))
	fmt.Fprintf(w, "  P99:  %12s\n", formatLatency(snap.P99Latency))
	fmt.Fprintf(w, "  Max:  %12s\n", formatLatency(snap.MaxLatency))
	fmt.Fprintln(w)

	if len(snap.StatusCodes) > 0 {
		fmt.Fprintln(w, "── Status Codes ──────────────────────────────────────")
		codes := make([]int, 0, len(snap.StatusCodes))
		for code := range snap.StatusCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)
		for _, code := range codes {
			count := snap.StatusCodes[code]
			pct := float64(count) / float64(snap.TotalRequests) * 100
			fmt.Fprintf(w, "  %d: %6d (%5.1f%%)\n", code, count, pct)
		}
		fmt.Fprintln(w)
	}

	if len(snap.Operations) > 0 {
		fmt.Fprintln(w, "── Operations ────────────────────────────────────────")
		fmt.Fprintf(w, "  %-10s %9s %9s %10s %10s %10s\n",
			"operation", "requests", "success", "p50", "p95", "p99")

		names := make([]string, 0, len(snap.Operations))
		for name := range snap.Operations {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool {
			a, b := snap.Operations[names[i]], snap.Operations[names[j]]
			if a.TotalRequests != b.TotalRequests {
				return a.TotalRequests > b.TotalRequests
			}
			return names[i] < names[j]
		})

		for _, name := range names {
			op := snap.Operations[name]
			fmt.Fprintf(w, "  %-10s %9d %8.1f%% %10s %10s %10s\n",
				op.Name, op.TotalRequests, op.SuccessRate,
				formatLatency(op.P50Latency), formatLatency(op.P95Latency), formatLatency(op.P99Latency))
		}
		fmt.Fprintln(w)
	}
}

func formatLatency(d time.Duration) string {
	if d == 0 {
		return "0ms"
	}
	if d < time.Microsecond {
		return fmt.Sprintf("%dns", d.Nanoseconds())
	}
	if d < time.Millisecond {
		return fmt.Sprintf("%.2fµs", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.2fms", float64(d.Nanoseconds())/1e6)
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Hour {
		minutes := int(d.Minutes())
		seconds := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", minutes, seconds)
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", hours, minutes)
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
