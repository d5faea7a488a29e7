package serviceutil

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Returns a context that will live until Ctrl+C is pressed
func SignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		cancel()
	}()

	return ctx
}

func StartHttpServer(ctx context.Context, port int, handler http.Handler) {
	srv := &http.Server{
		Addr:        fmt.Sprintf("0.0.0.0:%d", port),
		Handler:     handler,
		ReadTimeout: time.Second * 15,
		// extraction runs hold the connection open for minutes
		WriteTimeout: time.Minute * 10,
		IdleTimeout:  time.Second * 60,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	slog.Info("listening to http...", "port", port)
	err := srv.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		Fatal(fmt.Sprintf("failed to listen on port %d", port), err)
	}
}

func Fatal(message string, err error) {
	slog.Error(message, "err", err.Error())
	os.Exit(1)
}
