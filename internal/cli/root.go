package cli

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"expenses/internal/backend"
	"expenses/internal/config"
	"expenses/internal/core"
	applog "expenses/internal/log"
	"expenses/internal/session"
)

// app carries state shared by the commands of one invocation. The session
// and the backend components are opened on first use.
type app struct {
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	// Persistent flags
	envFile   string
	dataFlag  string
	logLevel  string
	logFormat string

	sheetsDryRun bool
	// interactive keeps the session open between commands and enables
	// periodic rate refresh.
	interactive bool

	cfg        *config.Config
	logger     *applog.Logger
	components *backend.Components
	sess       *session.Session
}

// Run executes the driver with args and releases everything it opened.
func Run(ctx context.Context, args []string, in io.Reader, out, errOut io.Writer) error {
	a := &app{in: in, out: out, errOut: errOut}
	root := newRootCmd(a, true)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if closeErr := a.close(context.WithoutCancel(ctx)); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

func newRootCmd(a *app, withShell bool) *cobra.Command {
	root := &cobra.Command{
		Use:   "expenses",
		Short: "Track report expenses and convert them to a base currency",
		Long: `Keep a list of expense line items, see a running total converted
to the report's base currency, and export the list as CSV or to Google Sheets.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(); err != nil {
				return err
			}
			ctx := applog.NewContext(cmd.Context(), a.logger.With("command", cmd.Name()))
			cmd.SetContext(ctx)
			applog.FromContext(ctx).DebugContext(ctx, "Running command", "args", args)
			return nil
		},
	}
	root.SetIn(a.in)
	root.SetOut(a.out)
	root.SetErr(a.errOut)

	flags := root.PersistentFlags()
	flags.StringVar(&a.envFile, "env-file", "", "Read settings from this env file")
	flags.StringVar(&a.dataFlag, "data-backend", "", "Storage backend: "+strings.Join(backend.GetBackendTypeStrings(), ", "))
	flags.StringVar(&a.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	flags.StringVar(&a.logFormat, "log-format", "", "Log format: text, json or pretty")
	flags.BoolVar(&a.sheetsDryRun, "sheets-dry-run", false, "Keep sheets exports in memory and print them")

	root.AddCommand(
		newListCmd(a),
		newAddCmd(a),
		newRmCmd(a),
		newSetCmd(a),
		newBaseCmd(a),
		newNameCmd(a),
		newTotalCmd(a),
		newSummaryCmd(a),
		newExportCmd(a),
		newCurrenciesCmd(a),
		newRatesCmd(a),
		newSheetsExportCmd(a),
		newWatchCmd(a),
	)
	if withShell {
		root.AddCommand(newShellCmd(a))
	}
	return root
}

// setup loads configuration and the logger once per invocation.
func (a *app) setup() error {
	if a.cfg != nil {
		return nil
	}
	cfg, err := LoadAndValidateConfig(a.envFile, func(c *config.Config) {
		if a.dataFlag != "" {
			c.DataBackend = a.dataFlag
		}
		if a.logLevel != "" {
			c.LogLevel = a.logLevel
		}
		if a.logFormat != "" {
			c.LogFormat = a.logFormat
		}
	})
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger = SetupLogger(cfg, a.errOut)
	a.logger.Debug("Configuration loaded", cfg.Summary()...)
	return nil
}

func (a *app) backend(ctx context.Context) (*backend.Components, error) {
	if a.components != nil {
		return a.components, nil
	}
	if err := a.setup(); err != nil {
		return nil, err
	}
	bc, err := backend.FromAppConfig(a.cfg)
	if err != nil {
		return nil, err
	}
	bc.SheetsDryRun = a.sheetsDryRun
	c, err := backend.NewFactory(a.logger).Create(ctx, bc)
	if err != nil {
		return nil, err
	}
	a.components = c
	return c, nil
}

func (a *app) session(ctx context.Context) (*session.Session, error) {
	if a.sess != nil {
		return a.sess, nil
	}
	c, err := a.backend(ctx)
	if err != nil {
		return nil, err
	}

	opts := session.Options{
		Gateway:      c.Gateway,
		Provider:     c.Provider,
		RateCache:    c.RateCache,
		Exporter:     c.Exporter,
		Defaults:     a.defaults(),
		RatesTimeout: a.cfg.RatesTimeout,
		Strict:       a.cfg.RatesStrict,
		Logger:       applog.FromContext(ctx),
	}
	if c.Notifier != nil {
		opts.Notifier = c.Notifier
	}
	if a.interactive {
		opts.RefreshInterval = a.cfg.RatesRefreshInterval
	}

	sess, err := session.Open(ctx, opts)
	if err != nil {
		return nil, err
	}
	a.sess = sess
	return sess, nil
}

func (a *app) defaults() core.ReportMetadata {
	return core.ReportMetadata{
		ReportName:   a.cfg.ReportName,
		BaseCurrency: a.cfg.BaseCurrency,
	}
}

func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.sess != nil {
		errs = append(errs, a.sess.Close(ctx))
		a.sess = nil
	}
	if a.components != nil {
		errs = append(errs, a.components.Cleanup())
		a.components = nil
	}
	return errors.Join(errs...)
}
