// Command transporter imports Journal Transporter payloads and serves the import API.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"journaltransporter/internal/app"
	"journaltransporter/internal/ingest"
	"journaltransporter/internal/logger"
	"journaltransporter/pkg/utils"
)

const Version = "0.1.0"

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the command line and returns the process exit code. Errors the
// commands did not report themselves, such as bad arguments, are printed here.
func execute(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	err := root.Execute()
	if err == nil {
		return 0
	}
	var rep *reportedError
	if !errors.As(err, &rep) {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return 1
}

// reportedError marks an error already printed by cli.fail.
type reportedError struct{ err error }

func (e *reportedError) Error() string { return e.err.Error() }
func (e *reportedError) Unwrap() error { return e.err }

// cli holds what every subcommand needs once flags are parsed.
type cli struct {
	configPath string
	logLevel   string
	stdout     io.Writer
	stderr     io.Writer

	cfg *utils.Config
	log *zap.Logger
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "transporter",
		Short:         "Journal Transporter import tool",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.log != nil {
				_ = c.log.Sync()
			}
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "config file (default ./transporter.toml)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(
		c.importJournalCmd(),
		c.exportJournalCmd(),
		c.pushCmd(),
		c.userCmd(),
		c.eventsCmd(),
		c.migrateCmd(),
		c.serveCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "transporter %s\n", Version)
			},
		},
	)

	return root
}

func (c *cli) init() error {
	cfg, err := utils.Load(c.configPath)
	if err != nil {
		return c.fail(err)
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return c.fail(err)
	}
	c.cfg, c.log = cfg, log
	return nil
}

func (c *cli) openApp() (*app.App, error) {
	a, err := app.New(c.cfg, c.log)
	if err != nil {
		return nil, c.fail(err)
	}
	return a, nil
}

// fail prints err for the user and returns it so cobra exits non-zero.
func (c *cli) fail(err error) error {
	var rep *reportedError
	if errors.As(err, &rep) {
		return err
	}
	c.report(err)
	return &reportedError{err: err}
}

func (c *cli) report(err error) {
	var verr *ingest.ValidationError
	if errors.As(err, &verr) {
		fmt.Fprintln(c.stderr, "validation failed:")
		fields := make([]string, 0, len(verr.Fields))
		for field := range verr.Fields {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		for _, field := range fields {
			for _, m := range verr.Fields[field] {
				fmt.Fprintf(c.stderr, "  %s: %s\n", field, m)
			}
		}
		return
	}
	fmt.Fprintf(c.stderr, "Error: %v\n", err)
}
