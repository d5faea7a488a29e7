package account

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"heytelecom-backend/lib/browser"
	"heytelecom-backend/lib/browser/domtest"
	"heytelecom-backend/lib/scrapers/heytelecom"
	"heytelecom-backend/lib/telemetry"

	"github.com/stretchr/testify/require"
)

const productsPage = `<html><body><ul><li class="iris-products__item">
	<span class="iris-products__details-tariff-number">0470 11 22 33</span>
	<span class="iris-products__details-tariff-name">hey! Mobile 5GB</span>
</li></ul></body></html>`

func fixtureFactory() SessionFactory {
	return func(ctx context.Context) (browser.Session, error) {
		return domtest.NewSession(map[string]string{
			heytelecom.DefaultBaseUrl + "/nl/mijn-producten": productsPage,
			heytelecom.DefaultBaseUrl + "/nl/mijn-facturen":  "<html><body></body></html>",
		}), nil
	}
}

func testClientOptions() heytelecom.ClientOptions {
	return heytelecom.ClientOptions{
		SettleDelay:  time.Millisecond,
		PollInterval: time.Millisecond,
		ReadyTimeout: time.Millisecond * 50,
		WaitTimeout:  time.Millisecond * 50,
	}
}

func TestExtract(t *testing.T) {
	defer telemetry.SetupForTesting(t, "test:services/account")()

	service := NewService(Options{
		NewSession: fixtureFactory(),
		Client:     testClientOptions(),
	})
	result, err := service.Extract(context.Background())
	require.NoError(t, err)
	require.Equal(t, "hey!", result.Provider)
	require.Len(t, result.Products, 1)
	require.Equal(t, "mobile_0470112233", result.Products[0].Id)
	require.Nil(t, result.Billing)
}

func TestExtractRejectsConcurrentRuns(t *testing.T) {
	defer telemetry.SetupForTesting(t, "test:services/account")()

	started := make(chan struct{})
	release := make(chan struct{})
	fixture := fixtureFactory()
	service := NewService(Options{
		NewSession: func(ctx context.Context) (browser.Session, error) {
			close(started)
			<-release
			return fixture(ctx)
		},
		Client: testClientOptions(),
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := service.Extract(context.Background())
		require.NoError(t, err)
	}()

	<-started
	_, err := service.Extract(context.Background())
	require.ErrorIs(t, err, ErrBusy)

	close(release)
	wg.Wait()
}

func TestExtractRecoversFromPanic(t *testing.T) {
	defer telemetry.SetupForTesting(t, "test:services/account")()

	service := NewService(Options{
		NewSession: func(ctx context.Context) (browser.Session, error) {
			panic("browser went away")
		},
		Client: testClientOptions(),
	})
	_, err := service.Extract(context.Background())
	require.Error(t, err)

	// the slot must have been released despite the panic
	service.newSession = fixtureFactory()
	_, err = service.Extract(context.Background())
	require.NoError(t, err)
}

func TestHandler(t *testing.T) {
	defer telemetry.SetupForTesting(t, "test:services/account")()

	service := NewService(Options{
		NewSession: fixtureFactory(),
		Client:     testClientOptions(),
	})
	server := httptest.NewServer(NewHandler(service))
	defer server.Close()

	resp, err := http.Get(server.URL + "/account")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
}

func TestHandlerReportsFailure(t *testing.T) {
	defer telemetry.SetupForTesting(t, "test:services/account")()

	service := NewService(Options{
		NewSession: func(ctx context.Context) (browser.Session, error) {
			return nil, fmt.Errorf("no chromium executable found")
		},
		Client: testClientOptions(),
	})
	server := httptest.NewServer(NewHandler(service))
	defer server.Close()

	resp, err := http.Get(server.URL + "/account")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestHandlerRejectsWhileBusy(t *testing.T) {
	defer telemetry.SetupForTesting(t, "test:services/account")()

	started := make(chan struct{})
	release := make(chan struct{})
	fixture := fixtureFactory()
	service := NewService(Options{
		NewSession: func(ctx context.Context) (browser.Session, error) {
			close(started)
			<-release
			return fixture(ctx)
		},
		Client: testClientOptions(),
	})
	server := httptest.NewServer(NewHandler(service))
	defer server.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		resp, err := http.Get(server.URL + "/account")
		if err == nil {
			resp.Body.Close()
		}
	}()

	<-started
	resp, err := http.Get(server.URL + "/account")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	close(release)
	wg.Wait()
}
