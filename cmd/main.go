package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/amirulhamizan12/agent-ui/internal/config"
)

type flags struct {
	port        string
	logLevel    string
	logFile     string
	noSpeech    bool
	noAudio     bool
	initTimeout int
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var f flags

	root := &cobra.Command{
		Use:   "agent-ui",
		Short: "Realtime voice agent backend",
		Long: `agent-ui keeps a text and a speech session open to the realtime model,
streams microphone audio in and assistant speech out, and dispatches
browser actions announced by the agent.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, f)
		},
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, f)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&f.port, "port", "p", "", "HTTP port (overrides PORT)")
	pf.StringVar(&f.logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	pf.StringVar(&f.logFile, "log-file", "", "rotating log file (overrides LOG_FILE)")
	pf.BoolVar(&f.noSpeech, "no-speech", false, "run without the speech socket")
	pf.BoolVar(&f.noAudio, "no-audio-devices", false, "do not open local audio devices")
	pf.IntVar(&f.initTimeout, "init-timeout", 30, "seconds to wait for every socket to become ready")

	root.AddCommand(serve)
	return root
}

func runServe(cmd *cobra.Command, f flags) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if f.port != "" {
		cfg.Port = f.port
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if f.logFile != "" {
		cfg.LogFile = f.logFile
	}
	if f.noSpeech {
		cfg.EnableSpeech = false
	}
	if f.noAudio {
		cfg.EnableAudioDevices = false
	}
	if f.initTimeout <= 0 {
		return fmt.Errorf("init-timeout must be positive, got %d", f.initTimeout)
	}

	return serve(cmd.Context(), cfg, f)
}
