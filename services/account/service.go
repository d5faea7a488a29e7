package account

import (
	"context"
	"fmt"
	"log/slog"

	"heytelecom-backend/lib/browser"
	"heytelecom-backend/lib/scrapers/heytelecom"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"
)

var tracer = otel.Tracer("services/account")

// ErrBusy is returned while another extraction still holds the browser
// profile.
var ErrBusy = fmt.Errorf("an extraction is already running")

// SessionFactory starts a fresh rendered-page session for one extraction
// run.
type SessionFactory func(ctx context.Context) (browser.Session, error)

type Options struct {
	NewSession SessionFactory
	Client     heytelecom.ClientOptions
}

// Service runs extractions one at a time. The browser profile directory
// and the rendered pages are both single-writer, so concurrent requests
// are rejected rather than queued.
type Service struct {
	newSession SessionFactory
	clientOpts heytelecom.ClientOptions
	slot       *semaphore.Weighted
}

func NewService(opts Options) Service {
	return Service{
		newSession: opts.NewSession,
		clientOpts: opts.Client,
		slot:       semaphore.NewWeighted(1),
	}
}

// Extract performs one full extraction run: start a session, login,
// collect account data, assemble the result document. The session is
// closed on every path, including panics out of the extraction itself.
func (s Service) Extract(ctx context.Context) (result heytelecom.ExtractionResult, err error) {
	ctx, span := tracer.Start(ctx, "account:Extract")
	defer span.End()

	if !s.slot.TryAcquire(1) {
		return heytelecom.ExtractionResult{}, ErrBusy
	}
	defer s.slot.Release(1)

	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "extraction panicked", "panic", r)
			err = fmt.Errorf("extraction failed")
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	session, err := s.newSession(ctx)
	if err != nil {
		return heytelecom.ExtractionResult{}, fmt.Errorf("failed to start browser session: %w", err)
	}
	defer session.Close()

	client := heytelecom.NewClient(session, s.clientOpts)
	err = client.Login(ctx)
	if err != nil {
		return heytelecom.ExtractionResult{}, err
	}
	data, err := client.AccountData(ctx)
	if err != nil {
		return heytelecom.ExtractionResult{}, err
	}
	return heytelecom.Assemble(data), nil
}
