package main

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/heaven-console/tui/internal/app"
	"github.com/heaven-console/tui/internal/client"
	"github.com/heaven-console/tui/internal/config"
	"github.com/heaven-console/tui/internal/console"
	"github.com/heaven-console/tui/internal/logging"
)

// env is what every subcommand runs with, resolved in PersistentPreRunE.
type env struct {
	cfg      *config.Config
	logger   zerolog.Logger
	closeLog func() error

	configPath string
	url        string
	token      string
	logFile    string
	logLevel   string
}

func (e *env) client() (*client.HTTPClient, error) {
	return client.NewHTTPClient(e.cfg.Server.URL, e.cfg.Server.Token, e.cfg.Refresh.RequestTimeout)
}

func (e *env) consoleOptions() console.Options {
	return console.Options{
		RefreshInterval: e.cfg.Refresh.Interval,
		ReconnectDelay:  e.cfg.Session.ReconnectDelay,
		PingInterval:    e.cfg.Session.PingInterval,
		PongTimeout:     e.cfg.Session.PongTimeout,
		WriteTimeout:    e.cfg.Session.WriteTimeout,
		Logger:          e.logger,
	}
}

func newRootCmd() *cobra.Command {
	e := &env{}

	root := &cobra.Command{
		Use:           "heaven-tui",
		Short:         "Terminal console for heaven's port status and serial consoles",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return e.load(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if e.closeLog != nil {
				return e.closeLog()
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(e, app.Options{})
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&e.configPath, "config", "heaven-tui.yaml", "Path to the YAML config file")
	flags.StringVar(&e.url, "url", "", "Base URL of the heaven server (overrides server.url)")
	flags.StringVar(&e.token, "token", "", "Auth token (overrides server.token)")
	flags.StringVar(&e.logFile, "log-file", "", "Write logs to this file (overrides log.file)")
	flags.StringVar(&e.logLevel, "log-level", "", "Log level: trace, debug, info, warn, error, off")

	root.AddCommand(
		&cobra.Command{
			Use:   "dashboard",
			Short: "Show the port status dashboard",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runTUI(e, app.Options{})
			},
		},
		&cobra.Command{
			Use:   "port <label>",
			Short: "Open the page of one port: job header, serial console and device info",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runTUI(e, app.Options{Port: args[0]})
			},
		},
		newAttachCmd(e),
		newAbortCmd(e),
	)
	return root
}

// load reads the config file and applies flag overrides.
func (e *env) load(cmd *cobra.Command) error {
	cfg, err := config.Load(e.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("url") {
		cfg.Server.URL = e.url
	}
	if flags.Changed("token") {
		cfg.Server.Token = e.token
	}
	if flags.Changed("log-file") {
		cfg.Log.File = e.logFile
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = e.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, closeLog, err := logging.New(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File})
	if err != nil {
		return err
	}
	e.cfg, e.logger, e.closeLog = cfg, logger, closeLog
	e.logger.Debug().Str("url", cfg.Server.URL).Str("command", cmd.Name()).Msg("starting")
	return nil
}

func runTUI(e *env, opts app.Options) error {
	c, err := e.client()
	if err != nil {
		return err
	}
	opts.Console = e.consoleOptions()
	opts.Scrollback = e.cfg.Session.Scrollback

	p := tea.NewProgram(app.New(c, opts), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
