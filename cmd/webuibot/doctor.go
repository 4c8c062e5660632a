package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"webuibot/internal/config"
	"webuibot/internal/provider"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on the bot setup",
		Long: `Verifies that the environment, Telegram token, endpoint, and log
path are correctly set up. Reports pass/warn/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("webuibot doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Environment complete
			if err := config.LoadEnvFile(envFile); err != nil {
				printFail("Env file", err.Error())
				failed++
			}
			cfg, err := config.Load()
			if err != nil {
				printFail("Environment", err.Error())
				failed++
				fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
				fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
				fmt.Printf("\nSet the missing variables (or point --env-file at a dotenv file) and retry.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			printPass("Environment", "all required variables set")
			passed++

			// 2. Telegram token shape
			masked := config.Sanitize(cfg).TelegramToken
			if err := telegramTokenShape(cfg.TelegramToken); err != nil {
				printWarn("Telegram token", fmt.Sprintf("%s: %v", masked, err))
				warned++
			} else {
				printPass("Telegram token", masked)
				passed++
			}

			// 3. Endpoint URL sane
			if err := endpointShape(cfg.ChatEndpoint); err != nil {
				printFail("Endpoint URL", err.Error())
				failed++
			} else {
				printPass("Endpoint URL", cfg.ChatEndpoint)
				passed++
			}

			// 4. Endpoint reachable
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			prov := provider.NewOpenWebUI(provider.OpenWebUIConfig{
				Endpoint:  cfg.ChatEndpoint,
				AuthToken: cfg.AuthToken,
				Model:     cfg.Model,
				Logger:    logger,
			})
			if err := prov.Healthy(ctx); err != nil {
				printWarn("Endpoint", err.Error())
				warned++
			} else {
				printPass("Endpoint", "reachable")
				passed++
			}

			// 5. Log path writable
			if err := logPathWritable(cfg.LogFile); err != nil {
				printFail("Log file", err.Error())
				failed++
			} else {
				printPass("Log file", cfg.LogFile)
				passed++
			}

			// 6. Metrics address free
			if cfg.MetricsAddr != "" {
				if err := checkAddr(cfg.MetricsAddr); err != nil {
					printWarn("Metrics addr", fmt.Sprintf("%s may be unusable: %v", cfg.MetricsAddr, err))
					warned++
				} else {
					printPass("Metrics addr", cfg.MetricsAddr+" available")
					passed++
				}
			}

			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				fmt.Printf("\nPlease fix the failed checks before starting the bot.\n")
				return fmt.Errorf("%d check(s) failed", failed)
			}
			if warned > 0 {
				fmt.Printf("\nThe bot should work but consider fixing the warnings.\n")
			} else {
				fmt.Printf("\nAll checks passed! The bot is ready to run.\n")
			}
			return nil
		},
	}
}

// telegramTokenShape checks the <numeric id>:<secret> form the Bot API
// hands out. Shape only; validity is proven by connecting.
func telegramTokenShape(token string) error {
	id, secret, ok := strings.Cut(token, ":")
	if !ok || id == "" || secret == "" {
		return errors.New("unexpected format, want <numeric id>:<secret>")
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return errors.New("bot id part is not numeric")
		}
	}
	if len(secret) < 30 {
		return errors.New("secret part looks too short")
	}
	return nil
}

func endpointShape(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("not a URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q, want http or https", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("URL has no host")
	}
	return nil
}

func logPathWritable(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("cannot create log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	return f.Close()
}

func checkAddr(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ln.Close()
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-16s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-16s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-16s %s\n", check, detail)
}
