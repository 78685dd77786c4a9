// Soak test runner for long-duration pairing stability.
//
// This tool starts the fixture app and two browsers, then repeatedly pairs
// the Remote with the TV, joins a meeting and resets the connection. It
// watches for failed cycles, leaked signaling rooms and heap growth over
// extended periods (hours).
//
// Usage:
//
//	go run ./cmd/soak --duration 1h
//	go run ./cmd/soak --duration 10m --headless=false
//
// Exposes pprof endpoint at :6060 for live profiling:
//
//	curl http://localhost:6060/debug/pprof/heap > heap.pprof
//	go tool pprof heap.pprof
package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof" // Enable pprof endpoints
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/thesyncim/tvremote/cmd/tvremote-app/server"
	"github.com/thesyncim/tvremote/pkg/logging"
	"github.com/thesyncim/tvremote/pkg/tvremote"
	"github.com/thesyncim/tvremote/pkg/tvremote/pages"
	"github.com/thesyncim/tvremote/pkg/tvremote/testutil"
)

const (
	cycleTimeout  = 90 * time.Second
	maxHeapMB     = 200
	maxFailedRate = 0.01
)

// SoakResult contains the results of a soak test run.
type SoakResult struct {
	Duration      time.Duration
	Cycles        int
	FailedCycles  int
	LeakedRooms   int
	PeakHeapMB    float64
	TotalGCCycles uint32
	Status        string
}

func main() {
	duration := pflag.Duration("duration", time.Hour, "Test duration (e.g., 10m, 1h)")
	pprofPort := pflag.Int("pprof-port", 6060, "Port for pprof HTTP server")
	headless := pflag.Bool("headless", true, "Run browsers headless")
	statusInterval := pflag.Duration("status-interval", time.Minute, "How often to print progress")
	debug := pflag.Bool("debug", false, "Enable debug logging")
	pflag.Parse()

	log := logging.NewConsole(*debug, "soak")

	fmt.Printf("TV/Remote Soak Test Runner\n")
	fmt.Printf("==========================\n")
	fmt.Printf("Duration: %v\n", *duration)
	fmt.Printf("Pprof:    http://localhost:%d/debug/pprof/\n", *pprofPort)
	fmt.Printf("\n")

	go func() {
		addr := fmt.Sprintf(":%d", *pprofPort)
		if err := http.ListenAndServe(addr, nil); err != nil {
			log.Warn().Err(err).Msg("pprof server failed")
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

	result, err := runSoakTest(ctx, log, *duration, *statusInterval, *headless)
	if err != nil {
		log.Error().Err(err).Msg("soak setup failed")
		os.Exit(1)
	}

	printSummary(result)

	if result.Status == "PASS" {
		os.Exit(0)
	}
	os.Exit(1)
}

func runSoakTest(ctx context.Context, log zerolog.Logger, duration, statusInterval time.Duration, headless bool) (SoakResult, error) {
	cfg := server.DefaultConfig()
	cfg.Logger = log.Level(zerolog.WarnLevel)
	srv, err := server.NewServer(cfg)
	if err != nil {
		return SoakResult{}, err
	}
	if _, err := srv.Start(); err != nil {
		return SoakResult{}, err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	browserCfg := testutil.DefaultBrowserConfig()
	browserCfg.Headless = headless
	tvBrowser, err := testutil.NewBrowserClient(browserCfg)
	if err != nil {
		return SoakResult{}, err
	}
	defer tvBrowser.Close()
	remoteBrowser, err := testutil.NewBrowserClient(browserCfg)
	if err != nil {
		return SoakResult{}, err
	}
	defer remoteBrowser.Close()

	sessionCfg, err := tvremote.LoadConfigFromEnv()
	if err != nil {
		return SoakResult{}, err
	}
	sessionCfg.AppURL = srv.BaseURL()

	session, err := tvremote.NewSession(
		pages.NewTV(tvBrowser, sessionCfg.AppURL),
		pages.NewRemote(remoteBrowser, sessionCfg.AppURL),
		sessionCfg,
		tvremote.WithLogger(log),
	)
	if err != nil {
		return SoakResult{}, err
	}

	result := SoakResult{Status: "PASS"}
	var memStats runtime.MemStats

	startTime := time.Now()
	lastStatusTime := startTime

	fmt.Printf("[%s] Starting soak test against %s...\n", formatDuration(0), sessionCfg.AppURL)

	for {
		elapsed := time.Since(startTime)
		if ctx.Err() != nil || elapsed >= duration {
			result.Duration = elapsed
			break
		}

		if err := runCycle(ctx, session); err != nil && ctx.Err() == nil {
			result.FailedCycles++
			fmt.Printf("[%s] ERROR: cycle %d failed: %v\n", formatDuration(elapsed), result.Cycles+1, err)
		}
		result.Cycles++

		// Every room must be gone once both sides have disconnected.
		if rooms := waitForRooms(srv.Hub(), 0, 2*time.Second); rooms > 0 {
			result.LeakedRooms = rooms
		}

		if time.Since(lastStatusTime) >= statusInterval {
			lastStatusTime = time.Now()
			runtime.ReadMemStats(&memStats)

			heapMB := float64(memStats.HeapAlloc) / (1024 * 1024)
			if heapMB > result.PeakHeapMB {
				result.PeakHeapMB = heapMB
			}
			result.TotalGCCycles = memStats.NumGC

			fmt.Printf("[%s] Cycles: %d, Failed: %d, Rooms: %d, HeapAlloc: %.2f MB, NumGC: %d\n",
				formatDuration(time.Since(startTime)),
				result.Cycles,
				result.FailedCycles,
				srv.Hub().Rooms(),
				heapMB,
				memStats.NumGC)

			if heapMB > maxHeapMB {
				fmt.Printf("[%s] ERROR: Memory limit exceeded: %.2f MB\n", formatDuration(time.Since(startTime)), heapMB)
				result.Status = "FAIL"
			}
		}
	}

	if result.Cycles == 0 || float64(result.FailedCycles)/float64(result.Cycles) > maxFailedRate || result.LeakedRooms > 0 {
		result.Status = "FAIL"
	}
	return result, nil
}

// runCycle pairs, joins a meeting and always resets the connection.
func runCycle(ctx context.Context, session *tvremote.Session) error {
	cycleCtx, cancel := context.WithTimeout(ctx, cycleTimeout)
	defer cancel()
	defer session.ResetConnection(context.Background())

	if err := session.ConnectToTV(cycleCtx); err != nil {
		return err
	}
	_, err := session.JoinMeeting(cycleCtx, "")
	return err
}

// waitForRooms polls until hub has want rooms or timeout passes, and
// returns the last count seen.
func waitForRooms(hub *server.Hub, want int, timeout time.Duration) int {
	deadline := time.Now().Add(timeout)
	for {
		n := hub.Rooms()
		if n == want || time.Now().After(deadline) {
			return n
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func printSummary(result SoakResult) {
	fmt.Printf("\n")
	fmt.Printf("Soak Test Complete\n")
	fmt.Printf("==================\n")
	fmt.Printf("Duration:        %v\n", result.Duration.Round(time.Second))
	fmt.Printf("Cycles:          %d\n", result.Cycles)
	fmt.Printf("Failed cycles:   %d\n", result.FailedCycles)
	fmt.Printf("Leaked rooms:    %d\n", result.LeakedRooms)
	fmt.Printf("Peak HeapAlloc:  %.2f MB\n", result.PeakHeapMB)
	fmt.Printf("Total GC cycles: %d\n", result.TotalGCCycles)
	fmt.Printf("Status:          %s\n", result.Status)
	fmt.Printf("\n")

	fmt.Printf("Pass Criteria:\n")
	fmt.Printf("  - At least one cycle:      %s\n", checkMark(result.Cycles > 0))
	fmt.Printf("  - Failure rate <= 1%%:      %s\n", checkMark(result.Cycles > 0 && float64(result.FailedCycles)/float64(result.Cycles) <= maxFailedRate))
	fmt.Printf("  - No leaked rooms:         %s\n", checkMark(result.LeakedRooms == 0))
	fmt.Printf("  - Peak memory < %d MB:    %s\n", maxHeapMB, checkMark(result.PeakHeapMB < maxHeapMB))
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
