package cli

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"expenses/internal/core"
	"expenses/internal/session"
)

var (
	warn  = color.New(color.FgYellow)
	title = color.New(color.Bold)
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printList(w io.Writer, sess *session.Session) error {
	meta := sess.Metadata()
	title.Fprintf(w, "%s (base %s)\n", meta.ReportName, meta.BaseCurrency)

	tw := newTable(w)
	fmt.Fprintf(tw, "ID\tDATE\tCATEGORY\tDESCRIPTION\tAMOUNT\tCURRENCY\t%s\tNOTES\n", meta.BaseCurrency)
	for _, row := range sess.Rows() {
		r := row.Record
		converted := row.Display()
		if !row.Available {
			converted = "n/a"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Date, r.Category, r.Description, r.Amount, r.Currency, converted, r.Notes)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	total, err := sess.Total()
	if err != nil {
		warn.Fprintf(w, "Total unavailable: %v\n", err)
	} else {
		fmt.Fprintf(w, "Total: %s\n", core.FormatMoney(total, meta.BaseCurrency))
	}
	if !sess.RatesAvailable() {
		warn.Fprintln(w, "Exchange rates unavailable, foreign amounts are not converted")
	}
	return nil
}

func printSummary(w io.Writer, s core.ReportSummary) error {
	title.Fprintf(w, "%s (base %s)\n", s.ReportName, s.BaseCurrency)
	fmt.Fprintf(w, "Records: %d\n", s.Records)

	tw := newTable(w)
	fmt.Fprintln(tw, "CATEGORY\tTOTAL")
	for _, c := range s.ByCategory {
		name := string(c.Category)
		if name == "" {
			name = "(none)"
		}
		fmt.Fprintf(tw, "%s\t%s\n", name, core.FormatAmount(c.Amount))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "Total: %s\n", core.FormatMoney(s.Total, s.BaseCurrency))
	if !s.RatesAvailable {
		warn.Fprintln(w, "Exchange rates unavailable, foreign amounts are not converted")
	}
	return nil
}

func printCurrencies(w io.Writer) error {
	tw := newTable(w)
	fmt.Fprintln(tw, "CODE\tSYMBOL\tNAME")
	for _, c := range core.Currencies() {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Code, c.Symbol, c.Name)
	}
	return tw.Flush()
}

func printRates(w io.Writer, snap core.RateSnapshot) error {
	if snap.IsEmpty() {
		warn.Fprintf(w, "No exchange rates loaded for %s\n", snap.Pivot)
		return nil
	}
	fmt.Fprintf(w, "Rates per 1 %s from %s, fetched %s\n",
		snap.Pivot, snap.Source, snap.FetchedAt.Format("2006-01-02 15:04:05"))

	rates := snap.Rates()
	codes := make([]string, 0, len(rates))
	for code := range rates {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	tw := newTable(w)
	fmt.Fprintln(tw, "CODE\tRATE")
	for _, code := range codes {
		fmt.Fprintf(tw, "%s\t%s\n", code, strconv.FormatFloat(rates[code], 'f', -1, 64))
	}
	return tw.Flush()
}

func printRows(w io.Writer, rows [][]string) {
	tw := newTable(w)
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	_ = tw.Flush()
}
