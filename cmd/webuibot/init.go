package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"webuibot/internal/config"

	"github.com/spf13/cobra"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Interactive setup: writes a dotenv file with the bot settings",
		Long:  "Guides you through the Telegram token, the Open WebUI connection and the operational settings, then writes them to a dotenv file (--env-file, default config/.env). Existing values become prompt defaults.",
		RunE:  runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	target := envFile
	if target == "" {
		target = filepath.Join("config", ".env")
	}
	// Pre-populate the environment so a re-run offers current values as
	// defaults. A missing file is fine here; init is how it gets created.
	if envFile == "" {
		_ = config.LoadEnvFile("")
	} else if _, err := os.Stat(envFile); err == nil {
		if err := config.LoadEnvFile(envFile); err != nil {
			return err
		}
	}

	reader := bufio.NewReader(os.Stdin)
	prompt := func(def string) (string, error) {
		if def != "" {
			fmt.Fprintf(os.Stdout, " [%s]: ", def)
		} else {
			fmt.Fprint(os.Stdout, ": ")
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		s := strings.TrimSpace(line)
		if s == "" && def != "" {
			return def, nil
		}
		return s, nil
	}
	// Secrets echo a masked default so a re-run never prints tokens.
	promptSecret := func(def string) (string, error) {
		if def == "" {
			return prompt("")
		}
		fmt.Fprintf(os.Stdout, " [%s]: ", config.Mask(def))
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		if s := strings.TrimSpace(line); s != "" {
			return s, nil
		}
		return def, nil
	}

	cfg := &config.Config{}

	// Step 1: Telegram
	fmt.Println("\n--- Step 1: Telegram ---")
	fmt.Fprint(os.Stdout, "Bot token (from @BotFather)")
	token, err := promptSecret(os.Getenv("TELEGRAM_BOT_TOKEN"))
	if err != nil {
		return err
	}
	cfg.TelegramToken = token

	// Step 2: Open WebUI
	fmt.Println("\n--- Step 2: Open WebUI ---")
	fmt.Fprint(os.Stdout, "Chat completions endpoint")
	cfg.ChatEndpoint, err = prompt(envDefault("OPWEBUI_CHAT_ENDPOINT", "http://localhost:3000/api/chat/completions"))
	if err != nil {
		return err
	}
	fmt.Fprint(os.Stdout, "JWT token (Settings > Account in Open WebUI)")
	cfg.AuthToken, err = promptSecret(os.Getenv("OPWEBUI_JWT_TOKEN"))
	if err != nil {
		return err
	}
	fmt.Fprint(os.Stdout, "Model id")
	cfg.Model, err = prompt(os.Getenv("OPWEBUI_MODEL"))
	if err != nil {
		return err
	}
	fmt.Fprint(os.Stdout, "Knowledge collection id (blank for none)")
	cfg.CollectionID, err = prompt(os.Getenv("OPWEBUI_COLLECTION_ID"))
	if err != nil {
		return err
	}

	// Step 3: Behavior
	fmt.Println("\n--- Step 3: Behavior ---")
	fmt.Fprint(os.Stdout, "Welcome message (blank for the built-in greeting)")
	cfg.WelcomeMessage, err = prompt(os.Getenv("WELCOME_MESSAGE"))
	if err != nil {
		return err
	}
	fmt.Fprint(os.Stdout, "System prompt (blank for none)")
	cfg.SystemPrompt, err = prompt(os.Getenv("SYSTEM_PROMPT"))
	if err != nil {
		return err
	}

	// Step 4: Operations
	fmt.Println("\n--- Step 4: Operations ---")
	fmt.Fprint(os.Stdout, "Log level (debug, info, warn, error)")
	cfg.LogLevel, err = prompt(envDefault("LOG_LEVEL", config.DefaultLogLevel))
	if err != nil {
		return err
	}
	fmt.Fprint(os.Stdout, "Log file path")
	cfg.LogFile, err = prompt(envDefault("LOG_FILE", config.DefaultLogFile))
	if err != nil {
		return err
	}
	fmt.Fprint(os.Stdout, "Metrics listen address, e.g. :9090 (blank to disable)")
	cfg.MetricsAddr, err = prompt(os.Getenv("METRICS_ADDR"))
	if err != nil {
		return err
	}

	if err := config.Validate(cfg); err != nil {
		return err
	}
	if err := writeEnvFile(target, cfg); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "\nSettings saved to %s\n", target)
	fmt.Println("Next: run 'webuibot doctor' to verify, then 'webuibot run'.")
	return nil
}

func writeEnvFile(path string, cfg *config.Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
	}

	var b strings.Builder
	b.WriteString("# webuibot settings. Loaded at startup; real environment variables win.\n")
	for _, v := range config.Vars(cfg) {
		if v.Value == "" {
			continue
		}
		fmt.Fprintf(&b, "%s=%s\n", v.Name, quoteEnvValue(v.Value))
	}
	// 0600: the file holds the bot token and the JWT.
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("write env file: %w", err)
	}
	return nil
}

func quoteEnvValue(v string) string {
	if strings.ContainsAny(v, " \t\n\"#'\\") {
		return strconv.Quote(v)
	}
	return v
}

func envDefault(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
