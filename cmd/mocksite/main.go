// Package main runs the fake website used to exercise the cookie scanner
// end to end.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sipico/consent-logger/internal/testutil/mocksite"
)

// getPort returns the port from the PORT environment variable or the default.
func getPort() string {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}
	return port
}

// initialCookies parses MOCKSITE_COOKIES, a JSON array of cookies the home
// page sets from startup.
func initialCookies() ([]mocksite.Cookie, error) {
	raw := os.Getenv("MOCKSITE_COOKIES")
	if raw == "" {
		return nil, nil
	}
	var cookies []mocksite.Cookie
	if err := json.Unmarshal([]byte(raw), &cookies); err != nil {
		return nil, fmt.Errorf("invalid MOCKSITE_COOKIES: %w", err)
	}
	return cookies, nil
}

func createServer(logger *slog.Logger) (*mocksite.Server, error) {
	cookies, err := initialCookies()
	if err != nil {
		return nil, err
	}
	s := mocksite.NewHandlerOnly(logger)
	s.SetCookies(cookies...)
	return s, nil
}

func createHTTPServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// setupShutdownHandler closes httpServer on SIGINT or SIGTERM.
func setupShutdownHandler(logger *slog.Logger, httpServer *http.Server) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig

		logger.Info("Shutting down mocksite")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		//nolint:errcheck
		httpServer.Shutdown(ctx)
		close(done)
	}()
	return done
}

// runHealthCheck returns 0 when the local server answers, 1 otherwise.
// Used by container HEALTHCHECK.
func runHealthCheck() int {
	return doHealthCheck("http://localhost:" + getPort() + "/admin/state")
}

func doHealthCheck(url string) int {
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return 1
	}
	//nolint:errcheck // Response body close errors are unrecoverable in health check
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 1
	}
	return 0
}

func main() {
	if len(os.Args) > 1 && os.Args[1] == "health" {
		os.Exit(runHealthCheck())
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	port := getPort()
	server, err := createServer(logger)
	if err != nil {
		logger.Error("Failed to start mocksite", "error", err)
		os.Exit(1)
	}

	httpServer := createHTTPServer(port, server.Handler())
	done := setupShutdownHandler(logger, httpServer)

	logger.Info("mocksite listening", "addr", httpServer.Addr)
	if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logger.Error("HTTP server error", "error", err)
		os.Exit(1)
	}

	<-done
	logger.Info("mocksite stopped")
}
