package main

import (
	"context"
	"os"

	"heytelecom-backend/lib/browser"
	"heytelecom-backend/lib/browser/cdp"
	"heytelecom-backend/lib/configutil"
	"heytelecom-backend/lib/scrapers/heytelecom"
	"heytelecom-backend/lib/serviceutil"
	"heytelecom-backend/lib/telemetry"
	"heytelecom-backend/services/account"

	"github.com/joho/godotenv"
)

type Config struct {
	Port    int  `json:"port"`
	Verbose bool `json:"verbose"`
	// BaseUrl overrides the production portal, used against a local mock.
	BaseUrl string `json:"base_url"`
	// ProfileDir is the persistent chromium profile. Sessions survive
	// restarts through it, which keeps logins rare.
	ProfileDir   string `json:"profile_dir"`
	ChromiumPath string `json:"chromium_path"`
}

func main() {
	ctx := serviceutil.SignalContext()

	// credentials live in the environment, never in config files
	godotenv.Load()

	config, err := configutil.ReadConfig[Config]("config.json5")
	if err != nil && !os.IsNotExist(err) {
		serviceutil.Fatal("failed to read config", err)
	}
	if config.Port == 0 {
		config.Port = 8230
	}
	if config.ProfileDir == "" {
		config.ProfileDir = "browser-profile"
	}

	telemetry.InitSlog(config.Verbose)
	t, err := telemetry.SetupFromEnv(ctx, "heyd")
	if err != nil {
		serviceutil.Fatal("failed to setup telemetry", err)
	}
	defer t.Shutdown(context.Background())

	telemetry.InstrumentPerfStats(ctx)

	service := account.NewService(account.Options{
		NewSession: func(ctx context.Context) (browser.Session, error) {
			return cdp.Launch(ctx, cdp.LaunchOptions{
				ExecPath:    config.ChromiumPath,
				UserDataDir: config.ProfileDir,
			})
		},
		Client: heytelecom.ClientOptions{
			BaseUrl: config.BaseUrl,
			Credentials: heytelecom.Credentials{
				Email:    os.Getenv("HEYTELECOM_EMAIL"),
				Password: os.Getenv("HEYTELECOM_PASSWORD"),
			},
		},
	})

	go serviceutil.StartHttpServer(ctx, config.Port, account.NewHandler(service))

	<-ctx.Done()
}
