// Soak test runner for the congestion controller.
//
// This tool models a fixed-latency, fixed-bandwidth link, drives the
// controller with window-gated traffic and periodic probes, and watches for
// window anomalies, probe queue growth, and memory leaks over extended
// periods.
//
// Usage:
//
//	go run ./cmd/soak -duration 1h -latency 20ms -bandwidth 50
//
// Exposes pprof endpoint at :6060 for live profiling:
//
//	curl http://localhost:6060/debug/pprof/heap > heap.pprof
//	go tool pprof heap.pprof
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof" // Enable pprof endpoints
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/vncflow/vncflow/pkg/congestion"
)

const (
	tickInterval          = 5 * time.Millisecond
	maxChunkPerTick       = 65536 // bytes handed to the link per tick, at most
	statusIntervalMinutes = 5
)

// SoakResult contains the results of a soak test run.
type SoakResult struct {
	Duration         time.Duration
	TotalBytes       uint64
	Adjustments      int
	FinalWindow      int64
	PeakPendingProbe int
	PeakHeapMB       float64
	TotalGCCycles    uint32
	SuspiciousEvents int
	Status           string
}

// link is a FIFO bottleneck: bytes transmit at a fixed rate and every
// probe response comes back one wire latency after the last byte queued
// ahead of it has left.
type link struct {
	latency   time.Duration
	byteTime  time.Duration // transmit time per byte
	busyUntil time.Time

	ackDue []time.Time
}

func newLink(latency time.Duration, bandwidthMbps float64) *link {
	return &link{
		latency:  latency,
		byteTime: time.Duration(8 * float64(time.Second) / (bandwidthMbps * 1e6)),
	}
}

// send occupies the link with n bytes starting no earlier than now.
func (l *link) send(now time.Time, n int) {
	if l.busyUntil.Before(now) {
		l.busyUntil = now
	}
	l.busyUntil = l.busyUntil.Add(time.Duration(n) * l.byteTime)
}

// probe schedules a probe response behind everything already queued.
func (l *link) probe(now time.Time) {
	due := now
	if l.busyUntil.After(due) {
		due = l.busyUntil
	}
	l.ackDue = append(l.ackDue, due.Add(l.latency))
}

// deliveries returns how many probe responses have arrived by now.
func (l *link) deliveries(now time.Time) int {
	n := 0
	for n < len(l.ackDue) && !l.ackDue[n].After(now) {
		n++
	}
	l.ackDue = l.ackDue[n:]
	return n
}

func main() {
	duration := flag.Duration("duration", time.Hour, "Test duration (e.g., 10m, 1h, 24h)")
	latency := flag.Duration("latency", 20*time.Millisecond, "One-way modeled wire latency")
	bandwidth := flag.Float64("bandwidth", 50, "Modeled link bandwidth in Mbps")
	probeInterval := flag.Duration("probe-interval", 100*time.Millisecond, "Interval between probes")
	pprofPort := flag.Int("pprof-port", 6060, "Port for pprof HTTP server")
	flag.Parse()

	fmt.Printf("Congestion Controller Soak Runner\n")
	fmt.Printf("=================================\n")
	fmt.Printf("Duration:  %v\n", *duration)
	fmt.Printf("Link:      %v latency, %.1f Mbps\n", *latency, *bandwidth)
	fmt.Printf("Probes:    every %v\n", *probeInterval)
	fmt.Printf("Pprof:     http://localhost:%d/debug/pprof/\n", *pprofPort)
	fmt.Printf("\n")

	go func() {
		addr := fmt.Sprintf(":%d", *pprofPort)
		if err := http.ListenAndServe(addr, nil); err != nil {
			fmt.Printf("Warning: pprof server failed: %v\n", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		fmt.Printf("\nReceived %v, shutting down gracefully...\n", sig)
		cancel()
	}()

	result := runSoak(ctx, *duration, *latency, *bandwidth, *probeInterval)

	printSummary(result)

	if result.Status == "PASS" {
		os.Exit(0)
	}
	os.Exit(1)
}

func runSoak(ctx context.Context, duration, latency time.Duration, bandwidth float64, probeInterval time.Duration) SoakResult {
	cfg := congestion.DefaultConfig()
	ctrl := congestion.NewController(cfg, nil)

	result := SoakResult{Status: "PASS"}

	var lastSnapshot congestion.Snapshot
	ctrl.SetCallback(func(s congestion.Snapshot) {
		result.Adjustments++
		lastSnapshot = s
	})

	path := newLink(latency, bandwidth)

	var memStats runtime.MemStats
	pos := uint32(0)

	startTime := time.Now()
	lastStatusTime := startTime
	lastProbeTime := startTime
	statusInterval := time.Duration(statusIntervalMinutes) * time.Minute

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	fmt.Printf("[%s] Starting soak run...\n", formatDuration(0))

	for {
		select {
		case <-ctx.Done():
			result.Duration = time.Since(startTime)
			result.FinalWindow = ctrl.Window()
			return result

		case now := <-ticker.C:
			elapsed := now.Sub(startTime)
			if elapsed >= duration {
				result.Duration = elapsed
				result.FinalWindow = ctrl.Window()
				return result
			}

			// Responses that made it back this tick.
			for i := path.deliveries(now); i > 0; i-- {
				ctrl.GotProbeAck()
			}

			// Send as much as the window allows.
			budget := ctrl.Window() - ctrl.InFlight()
			if budget > maxChunkPerTick {
				budget = maxChunkPerTick
			}
			if budget > 0 {
				pos += uint32(budget)
				ctrl.UpdatePosition(pos)
				path.send(now, int(budget))
				result.TotalBytes += uint64(budget)
			}

			if now.Sub(lastProbeTime) >= probeInterval {
				lastProbeTime = now
				ctrl.SentProbe()
				path.probe(now)
			}

			if pending := ctrl.PendingProbes(); pending > result.PeakPendingProbe {
				result.PeakPendingProbe = pending
			}

			// Anomaly checks.
			if w := ctrl.Window(); w < cfg.MinimumWindow || w > cfg.MaximumWindow {
				fmt.Printf("[%s] ERROR: window %d outside bounds\n", formatDuration(elapsed), w)
				result.SuspiciousEvents++
				result.Status = "FAIL"
			}
			if eta, ok := ctrl.UncongestedETA(); ok && eta < 0 {
				fmt.Printf("[%s] ERROR: negative uncongested ETA %v\n", formatDuration(elapsed), eta)
				result.SuspiciousEvents++
				result.Status = "FAIL"
			}

			if now.Sub(lastStatusTime) >= statusInterval {
				lastStatusTime = now
				runtime.ReadMemStats(&memStats)

				heapMB := float64(memStats.HeapAlloc) / (1024 * 1024)
				if heapMB > result.PeakHeapMB {
					result.PeakHeapMB = heapMB
				}
				result.TotalGCCycles = memStats.NumGC

				fmt.Printf("[%s] Window: %d KiB, BaseRTT: %v, Bandwidth: %.2f Mbps, Pending: %d, HeapAlloc: %.2f MB\n",
					formatDuration(elapsed),
					ctrl.Window()/1024,
					lastSnapshot.BaseRTT,
					lastSnapshot.Bandwidth/1e6,
					ctrl.PendingProbes(),
					heapMB)

				// Memory limit check (100 MB)
				if heapMB > 100 {
					fmt.Printf("[%s] ERROR: Memory limit exceeded: %.2f MB\n", formatDuration(elapsed), heapMB)
					result.Status = "FAIL"
				}
			}
		}
	}
}

func printSummary(result SoakResult) {
	fmt.Printf("\n")
	fmt.Printf("Soak Run Complete\n")
	fmt.Printf("=================\n")
	fmt.Printf("Duration:           %v\n", result.Duration.Round(time.Second))
	fmt.Printf("Bytes sent:         %d MiB\n", result.TotalBytes/(1024*1024))
	fmt.Printf("Window adjustments: %d\n", result.Adjustments)
	fmt.Printf("Final window:       %d KiB\n", result.FinalWindow/1024)
	fmt.Printf("Peak pending:       %d probes\n", result.PeakPendingProbe)
	fmt.Printf("Peak HeapAlloc:     %.2f MB\n", result.PeakHeapMB)
	fmt.Printf("Total GC cycles:    %d\n", result.TotalGCCycles)
	fmt.Printf("Suspicious events:  %d\n", result.SuspiciousEvents)
	fmt.Printf("Status:             %s\n", result.Status)
	fmt.Printf("\n")

	fmt.Printf("Pass Criteria:\n")
	fmt.Printf("  - No panics:            %s\n", checkMark(true))
	fmt.Printf("  - Window within bounds: %s\n", checkMark(result.SuspiciousEvents == 0))
	fmt.Printf("  - Probe queue bounded:  %s\n", checkMark(result.PeakPendingProbe < 100))
	fmt.Printf("  - Peak memory < 100 MB: %s\n", checkMark(result.PeakHeapMB < 100))
}

func formatDuration(d time.Duration) string {
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func checkMark(pass bool) string {
	if pass {
		return "PASS"
	}
	return "FAIL"
}
