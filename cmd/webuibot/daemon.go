package main

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
)

func daemonCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Install or remove the bot as a system daemon",
	}
	cmd.AddCommand(installDaemonCmd())
	cmd.AddCommand(uninstallDaemonCmd())
	return cmd
}

func installDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "Install the bot as a system daemon (launchd/systemd)",
		Long:  "Generates and installs a service file so the relay starts on login and restarts on failure. The --env-file path, when given, is baked into the service as an absolute path.",
		RunE: func(cmd *cobra.Command, args []string) error {
			execPath, err := os.Executable()
			if err != nil {
				return fmt.Errorf("cannot determine executable path: %w", err)
			}
			extraArgs, err := serviceArgs()
			if err != nil {
				return err
			}

			switch runtime.GOOS {
			case "darwin":
				return installLaunchd(execPath, extraArgs)
			case "linux":
				return installSystemd(execPath, extraArgs)
			default:
				return fmt.Errorf("unsupported OS: %s (supported: darwin, linux)", runtime.GOOS)
			}
		},
	}
}

func uninstallDaemonCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the bot's system daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch runtime.GOOS {
			case "darwin":
				return uninstallLaunchd()
			case "linux":
				return uninstallSystemd()
			default:
				return fmt.Errorf("unsupported OS: %s", runtime.GOOS)
			}
		},
	}
}

// serviceArgs returns the arguments after "run" for the service command
// line. The env file is resolved now because the daemon will not share
// this process's working directory.
func serviceArgs() ([]string, error) {
	if envFile == "" {
		return nil, nil
	}
	abs, err := filepath.Abs(envFile)
	if err != nil {
		return nil, fmt.Errorf("resolve env file: %w", err)
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, fmt.Errorf("env file: %w", err)
	}
	return []string{"--env-file", abs}, nil
}

const launchdLabel = "com.webuibot.relay"

func installLaunchd(execPath string, extraArgs []string) error {
	home, _ := os.UserHomeDir()
	plistDir := filepath.Join(home, "Library", "LaunchAgents")
	plistPath := filepath.Join(plistDir, launchdLabel+".plist")

	logPath := filepath.Join(home, ".webuibot", "logs", "webuibot.log")
	errLogPath := filepath.Join(home, ".webuibot", "logs", "webuibot-error.log")
	os.MkdirAll(filepath.Dir(logPath), 0o755)

	var argsXML strings.Builder
	for _, a := range append([]string{execPath, "run"}, extraArgs...) {
		fmt.Fprintf(&argsXML, "        <string>%s</string>\n", a)
	}

	plist := strings.ReplaceAll(launchdTemplate, "{{LABEL}}", launchdLabel)
	plist = strings.ReplaceAll(plist, "{{ARGS}}", strings.TrimRight(argsXML.String(), "\n"))
	plist = strings.ReplaceAll(plist, "{{LOG}}", logPath)
	plist = strings.ReplaceAll(plist, "{{ERR_LOG}}", errLogPath)

	if err := os.MkdirAll(plistDir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(plistPath, []byte(plist), 0o644); err != nil {
		return err
	}

	fmt.Printf("Daemon installed: %s\n", plistPath)
	fmt.Printf("To start: launchctl load %s\n", plistPath)
	fmt.Printf("To stop:  launchctl unload %s\n", plistPath)
	return nil
}

func uninstallLaunchd() error {
	home, _ := os.UserHomeDir()
	plistPath := filepath.Join(home, "Library", "LaunchAgents", launchdLabel+".plist")
	if err := os.Remove(plistPath); err != nil {
		return fmt.Errorf("remove plist: %w", err)
	}
	fmt.Printf("Daemon uninstalled: %s\n", plistPath)
	return nil
}

func installSystemd(execPath string, extraArgs []string) error {
	home, _ := os.UserHomeDir()
	unitDir := filepath.Join(home, ".config", "systemd", "user")
	unitPath := filepath.Join(unitDir, "webuibot.service")

	execStart := execPath + " run"
	if len(extraArgs) > 0 {
		execStart += " " + strings.Join(extraArgs, " ")
	}
	unit := strings.ReplaceAll(systemdTemplate, "{{EXEC_START}}", execStart)

	if err := os.MkdirAll(unitDir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(unitPath, []byte(unit), 0o644); err != nil {
		return err
	}

	fmt.Printf("Daemon installed: %s\n", unitPath)
	fmt.Printf("To start:  systemctl --user start webuibot\n")
	fmt.Printf("To enable: systemctl --user enable webuibot\n")
	fmt.Printf("To stop:   systemctl --user stop webuibot\n")
	return nil
}

func uninstallSystemd() error {
	home, _ := os.UserHomeDir()
	unitPath := filepath.Join(home, ".config", "systemd", "user", "webuibot.service")
	if err := os.Remove(unitPath); err != nil {
		return fmt.Errorf("remove unit: %w", err)
	}
	fmt.Printf("Daemon uninstalled: %s\n", unitPath)
	return nil
}

const launchdTemplate = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{LABEL}}</string>
    <key>ProgramArguments</key>
    <array>
{{ARGS}}
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <true/>
    <key>StandardOutPath</key>
    <string>{{LOG}}</string>
    <key>StandardErrorPath</key>
    <string>{{ERR_LOG}}</string>
</dict>
</plist>`

const systemdTemplate = `[Unit]
Description=Telegram relay for Open WebUI
After=network.target

[Service]
Type=simple
ExecStart={{EXEC_START}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target`
