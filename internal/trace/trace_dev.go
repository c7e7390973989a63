//go:build dev

// Package trace records runtime traces of builds and deployments in
// development builds.
//
// Usage:
//
//	go build -tags dev ./cmd/pylambda
//	PYLAMBDA_TRACE=trace.out pylambda deploy
//	go tool trace trace.out
package trace

import (
	"context"
	"fmt"
	"os"
	"runtime/trace"
	"sync"
)

// EnvVar names the file the trace is written to
const EnvVar = "PYLAMBDA_TRACE"

var (
	traceFile   *os.File
	traceMu     sync.Mutex
	traceActive bool
)

// Init starts tracing when PYLAMBDA_TRACE is set.
// Returns a function that flushes and closes the trace.
func Init() func() {
	tracePath := os.Getenv(EnvVar)
	if tracePath == "" {
		return func() {}
	}

	traceMu.Lock()
	defer traceMu.Unlock()

	var err error
	traceFile, err = os.Create(tracePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pylambda: failed to create trace file %s: %v\n", tracePath, err)
		return func() {}
	}

	if err := trace.Start(traceFile); err != nil {
		fmt.Fprintf(os.Stderr, "pylambda: failed to start trace: %v\n", err)
		traceFile.Close()
		traceFile = nil
		return func() {}
	}
	traceActive = true

	return func() {
		traceMu.Lock()
		defer traceMu.Unlock()

		if traceActive {
			trace.Stop()
			traceActive = false
		}
		if traceFile != nil {
			traceFile.Close()
			traceFile = nil
		}
	}
}

// Region starts a trace region and returns the function ending it
func Region(ctx context.Context, name string) func() {
	if !traceActive {
		return func() {}
	}
	return trace.StartRegion(ctx, name).End
}

// Log attaches a message to the trace
func Log(ctx context.Context, category, message string) {
	if traceActive {
		trace.Log(ctx, category, message)
	}
}

// IsEnabled reports whether a trace is being recorded
func IsEnabled() bool {
	return traceActive
}
