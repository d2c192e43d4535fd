package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"expenses/internal/amqp"
	"expenses/internal/core"
	applog "expenses/internal/log"
	"expenses/internal/session"
	"expenses/internal/sheets/memory"
	"expenses/internal/store"
	"expenses/internal/worker"
)

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List expenses with their converted amounts",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			return printList(cmd.OutOrStdout(), sess)
		},
	}
}

func newAddCmd(a *app) *cobra.Command {
	var r core.Record
	var category string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add an expense",
		Long: `Add an expense. Without flags a blank row in the base currency dated
today is added, ready to be filled in with "set".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := core.ParseCategory(category)
			if err != nil {
				return fmt.Errorf("%w: %q (one of %s)", err, category, categoryList())
			}
			r.Category = c

			sess, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			added, err := sess.AddExpense(cmd.Context(), r)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added expense %d\n", added.ID)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&r.Date, "date", "", "Date as YYYY-MM-DD (default today)")
	f.StringVar(&category, "category", "", "Category")
	f.StringVar(&r.Description, "description", "", "Description")
	f.StringVar(&r.Amount, "amount", "", "Amount")
	f.StringVar(&r.Currency, "currency", "", "Currency code (default base currency)")
	f.StringVar(&r.Notes, "notes", "", "Notes")
	return cmd
}

func newRmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"remove"},
		Short:   "Remove an expense",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			sess, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			removed, err := sess.RemoveExpense(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !removed {
				fmt.Fprintf(cmd.OutOrStdout(), "No expense %d\n", id)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed expense %d\n", id)
			return nil
		},
	}
}

func newSetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set <id> <field> <value>",
		Short: "Change one field of an expense",
		Long:  "Change one field of an expense. Fields: " + strings.Join(store.Fields(), ", ") + ".",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			sess, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			ok, err := sess.UpdateExpense(cmd.Context(), id, args[1], args[2])
			if err != nil {
				if errors.Is(err, core.ErrInvalidCategory) {
					return fmt.Errorf("%w (one of %s)", err, categoryList())
				}
				return err
			}
			if !ok {
				fmt.Fprintf(cmd.OutOrStdout(), "No expense %d\n", id)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated expense %d\n", id)
			return nil
		},
	}
}

func newBaseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "base [currency]",
		Short: "Show or change the base currency",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			if len(args) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), sess.Metadata().BaseCurrency)
				return nil
			}
			if err := sess.SetBaseCurrency(cmd.Context(), args[0]); err != nil {
				return err
			}
			base := sess.Metadata().BaseCurrency
			fmt.Fprintf(cmd.OutOrStdout(), "Base currency set to %s\n", base)
			if !sess.RatesAvailable() {
				warn.Fprintf(cmd.ErrOrStderr(), "Exchange rates for %s are unavailable\n", base)
			}
			return nil
		},
	}
}

func newNameCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "name [report name]",
		Short: "Show or change the report name",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			if len(args) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), sess.Metadata().ReportName)
				return nil
			}
			name := strings.Join(args, " ")
			if err := sess.SetReportName(cmd.Context(), name); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Report renamed to %q\n", name)
			return nil
		},
	}
}

func newTotalCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "total",
		Short: "Print the report total in the base currency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			total, err := sess.Total()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), core.FormatMoney(total, sess.Metadata().BaseCurrency))
			return nil
		},
	}
}

func newSummaryCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Print totals by category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			return printSummary(cmd.OutOrStdout(), sess.Summary())
		},
	}
}

func newExportCmd(a *app) *cobra.Command {
	var dir string
	var stdout bool

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the report as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			if stdout {
				_, data, err := sess.ExportCSV()
				if err != nil {
					return err
				}
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			path, err := sess.WriteCSV(cmd.Context(), dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", ".", "Directory to write the CSV file into")
	cmd.Flags().BoolVar(&stdout, "stdout", false, "Write the CSV to standard output")
	return cmd
}

func newCurrenciesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "currencies",
		Short: "List supported currencies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printCurrencies(cmd.OutOrStdout())
		},
	}
}

func newRatesCmd(a *app) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "rates",
		Short: "Show the exchange rates in use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			if refresh {
				if err := sess.RefreshRates(cmd.Context()); err != nil {
					warn.Fprintf(cmd.ErrOrStderr(), "Refresh failed: %v\n", err)
				}
			}
			return printRates(cmd.OutOrStdout(), sess.Rates())
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Fetch rates before printing")
	return cmd
}

func newSheetsExportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sheets-export",
		Short: "Append the report to the configured Google spreadsheet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.session(cmd.Context())
			if err != nil {
				return err
			}
			ref, err := sess.ExportSheets(cmd.Context())
			if err != nil {
				return err
			}
			// Dry runs keep the report in memory; show what would be written.
			if dry, ok := a.components.Exporter.(*memory.Store); ok {
				if reports := dry.Reports(); len(reports) > 0 {
					printRows(cmd.OutOrStdout(), reports[len(reports)-1].Rows)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", ref)
			return nil
		},
	}
}

func newWatchCmd(a *app) *cobra.Command {
	var sync bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print report-saved notifications from the message broker",
		Long: `Print report-saved notifications from the message broker until
interrupted. With --sync every notification also appends the stored report
to the configured spreadsheet.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.backend(cmd.Context())
			if err != nil {
				return err
			}
			if c.Notifier == nil {
				return errors.New("notifications are not configured (set EXPENSES_AMQP_URL)")
			}

			var w *worker.ReportWorker
			if sync {
				if c.Exporter == nil {
					return session.ErrSheetsDisabled
				}
				logger := applog.FromContext(cmd.Context())
				w = worker.NewReportWorker(c.Gateway, c.Provider, c.Exporter, a.defaults(), logger)
				if _, err := w.SyncNow(cmd.Context()); err != nil {
					logger.WarnContext(cmd.Context(), "Startup sync failed", applog.FieldError, err)
				}
			}

			parent, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			ctx, done := GracefulShutdown(parent, a.logger, a.cfg.RatesTimeout, nil)
			out := cmd.OutOrStdout()
			err = c.Notifier.ConsumeReportSaved(ctx, func(m *amqp.ReportSavedMessage) error {
				fmt.Fprintf(out, "%s  %s  %d records  total %s %s\n",
					m.SavedAt.Format("2006-01-02 15:04:05"), m.ReportName, m.Records, m.Total, m.BaseCurrency)
				if w == nil {
					return nil
				}
				return w.HandleReportSaved(ctx, m)
			})
			cancel()
			WaitForShutdown(ctx, done)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&sync, "sync", false, "Export the stored report to Google Sheets on every notification")
	return cmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid expense id %q", s)
	}
	return id, nil
}

func categoryList() string {
	cats := core.Categories()
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = strconv.Quote(string(c))
	}
	return strings.Join(names, ", ")
}
