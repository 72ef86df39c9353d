package main

import (
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"webterm/internal/backend"
	"webterm/internal/console"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		backendURL     string
		pollInterval   time.Duration
		executeTimeout time.Duration
		logFile        string
	)

	cmd := &cobra.Command{
		Use:           "console-tui",
		Short:         "Terminal console for a remote execution service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// The TUI owns the terminal, so logs go to a file or nowhere.
			log := logrus.New()
			log.SetOutput(io.Discard)
			if logFile != "" {
				f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
				if err != nil {
					return fmt.Errorf("open log file: %w", err)
				}
				defer f.Close()
				log.SetOutput(f)
			}

			ctrl := console.New(backend.New(backendURL),
				console.WithLogger(log),
				console.WithPollInterval(pollInterval),
				console.WithExecuteTimeout(executeTimeout),
			)
			defer ctrl.Close()

			subID, updates, state, err := ctrl.Subscribe()
			if err != nil {
				return err
			}
			defer ctrl.Unsubscribe(subID)

			if err := ctrl.Start(); err != nil {
				return err
			}

			p := tea.NewProgram(newModel(ctrl, updates, state), tea.WithAltScreen())
			_, err = p.Run()
			return err
		},
	}

	cmd.Flags().StringVar(&backendURL, "backend-url", backend.DefaultBaseURL, "base URL of the execution service")
	cmd.Flags().DurationVar(&pollInterval, "poll-interval", console.DefaultPollInterval, "health and metrics poll interval")
	cmd.Flags().DurationVar(&executeTimeout, "execute-timeout", console.DefaultExecuteTimeout, "per-command timeout, 0 to disable")
	cmd.Flags().StringVar(&logFile, "log-file", "", "append logs to this file")
	return cmd
}
