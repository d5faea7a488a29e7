package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"heytelecom-backend/lib/browser/cdp"
	"heytelecom-backend/lib/scrapers/heytelecom"
	"heytelecom-backend/lib/serviceutil"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	extractBaseUrl  *string
	extractProfile  *string
	extractChromium *string
)

func init() {
	extractBaseUrl = extractCmd.Flags().String("base-url", "", "Override the portal base url.")
	extractProfile = extractCmd.Flags().String("profile", "browser-profile", "The persistent browser profile directory.")
	extractChromium = extractCmd.Flags().String("chromium", "", "Path to the chromium binary.")
	rootCmd.AddCommand(extractCmd)
}

var extractCmd = &cobra.Command{
	Use:   "extract [--profile <dir>]",
	Short: "Runs one extraction and prints the result document to stdout.",
	Run: func(cmd *cobra.Command, args []string) {
		godotenv.Load()
		ctx := cmd.Context()

		session, err := cdp.Launch(ctx, cdp.LaunchOptions{
			ExecPath:    *extractChromium,
			UserDataDir: *extractProfile,
		})
		if err != nil {
			serviceutil.Fatal("failed to launch browser", err)
		}
		defer session.Close()

		client := heytelecom.NewClient(session, heytelecom.ClientOptions{
			BaseUrl: *extractBaseUrl,
			Credentials: heytelecom.Credentials{
				Email:    os.Getenv("HEYTELECOM_EMAIL"),
				Password: os.Getenv("HEYTELECOM_PASSWORD"),
			},
		})

		t1 := time.Now()
		err = client.Login(ctx)
		if err != nil {
			serviceutil.Fatal("failed to login", err)
		}
		data, err := client.AccountData(ctx)
		if err != nil {
			serviceutil.Fatal("failed to extract account data", err)
		}
		result := heytelecom.Assemble(data)

		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			serviceutil.Fatal("failed to encode result", err)
		}
		fmt.Println(string(out))
		fmt.Fprintf(os.Stderr, "extraction took %.1fs\n", time.Since(t1).Seconds())
	},
}
