package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	aio "github.com/ehrlich-b/go-aio"
	"github.com/ehrlich-b/go-aio/internal/config"
	"github.com/ehrlich-b/go-aio/internal/load"
)

func printSummary(w io.Writer, typ aio.OpType, res load.Result, snap aio.MetricsSnapshot) {
	fmt.Fprintf(w, "\n%s step: %d finished, %d failed, %d skipped in %s\n",
		typ, res.Finished, res.Failed(), res.Skipped, res.Elapsed.Round(time.Millisecond))

	statuses := make([]aio.Status, 0, len(res.ByStatus))
	for s := range res.ByStatus {
		statuses = append(statuses, s)
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i] < statuses[j] })
	for _, s := range statuses {
		fmt.Fprintf(w, "  %-14s %d\n", s, res.ByStatus[s])
	}

	fmt.Fprintf(w, "Throughput: %.1f ops/s", snap.OpsPerSec)
	if snap.WriteBytes > 0 {
		fmt.Fprintf(w, ", written %s (%s/s)", config.FormatSize(int64(snap.WriteBytes)),
			config.FormatSize(int64(snap.WriteBandwidth)))
	}
	if snap.ReadBytes > 0 {
		fmt.Fprintf(w, ", read %s (%s/s)", config.FormatSize(int64(snap.ReadBytes)),
			config.FormatSize(int64(snap.ReadBandwidth)))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Latency: avg %s p50 %s p99 %s p99.9 %s\n",
		time.Duration(snap.AvgLatencyNs), time.Duration(snap.LatencyP50Ns),
		time.Duration(snap.LatencyP99Ns), time.Duration(snap.LatencyP999Ns))
	fmt.Fprintf(w, "Admission: %d admitted, %d refused, max active %d, %d continuations",
		snap.Admitted, snap.Refused, snap.MaxActive, snap.Continuations)
	if snap.LostContinuations > 0 {
		fmt.Fprintf(w, ", %d lost", snap.LostContinuations)
	}
	fmt.Fprintln(w)
	if snap.SizeMismatches+snap.ContentMismatches > 0 {
		fmt.Fprintf(w, "Verification: %d size mismatches, %d content mismatches\n",
			snap.SizeMismatches, snap.ContentMismatches)
	}
}
