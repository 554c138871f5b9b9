// Command sandboxworker runs inside each session container: one embedded
// interpreter behind the five-route HTTP surface the Controller relays
// /exec traffic to.
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/arndt-labs/codesandbox/internal/worker/executor"
	"github.com/arndt-labs/codesandbox/internal/worker/httpapi"
)

func main() {
	os.Exit(run())
}

func run() int {
	listen := os.Getenv("WORKER_LISTEN")
	if listen == "" {
		listen = ":9000"
	}

	logLevel := slog.LevelInfo
	if os.Getenv("WORKER_LOG_LEVEL") == "debug" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))

	exec := executor.New(logger)
	defer exec.Close()

	srv := httpapi.New(exec, logger)
	httpServer := &http.Server{
		Addr:         listen,
		Handler:      srv.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // exec responses stream for as long as the code runs
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("worker listening", "addr", listen)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		fmt.Fprintf(os.Stderr, "serve: %v\n", err)
		return 1
	}
	return 0
}
