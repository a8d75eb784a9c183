package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/FranksOps/partscout/internal/config"
)

// exitError carries a process exit status other than 1.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// app is the state shared by all subcommands once flags are parsed.
type app struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
}

// NewRootCmd builds the partscout command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "partscout [query words...]",
		Short: "partscout searches auto-part suppliers and ranks listings by review sentiment.",
		Long: `partscout expands a part query into variants, searches every configured
supplier for each variant, scores descriptions and reviews for sentiment
and writes the ranked listings to fs_results_<query>.json.

With no arguments the query is read from standard input. A query whose
first word is a subcommand name is passed after "--", for example
"partscout -- show cables".`,
		Args:              cobra.ArbitraryArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		RunE:              a.runSearch,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "Path to a partscout.yaml config file.")
	pf.String("output-dir", ".", "Directory result artifacts are written to.")
	pf.StringSlice("backend", []string{config.BackendJSON}, "Output backends: json, csv, sqlite, postgres.")
	pf.Duration("delay", time.Second, "Courtesy delay between consecutive supplier fetches.")
	pf.String("log-level", "info", "Log level: debug, info, warn, error.")
	pf.Int("metrics-port", 0, "Expose Prometheus metrics on this port (0 disables).")

	root.AddCommand(newShowCmd(a), newSuppliersCmd(a))
	return root
}

func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.configPath, cmd.Flags())
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = newLogger(cmd.ErrOrStderr(), cfg.Log)
	slog.SetDefault(a.logger)
	return nil
}

func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	// validated by config.Load
	level, _ := config.ParseLevel(cfg.Level)

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		NoColor:    !isTerminal(w),
	}))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}

// ExecuteContext runs the CLI and returns the process exit code.
func ExecuteContext(ctx context.Context) int {
	cmd := NewRootCmd()
	return exitCode(cmd.ErrOrStderr(), cmd.ExecuteContext(ctx))
}

func exitCode(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	fmt.Fprintln(w, err)

	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}
