package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"marketdesk/pkg/marketdesk"
)

const version = "0.1.0"

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: marketdesk-cli <command> [args]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  version                         Print the CLI version\n")
	fmt.Fprintf(os.Stderr, "  lists                           Show all watchlists and the active one\n")
	fmt.Fprintf(os.Stderr, "  use <name>                      Switch the active watchlist\n")
	fmt.Fprintf(os.Stderr, "  create <name>                   Create a watchlist\n")
	fmt.Fprintf(os.Stderr, "  drop <name>                     Delete a watchlist\n")
	fmt.Fprintf(os.Stderr, "  watch                           Show the active watchlist\n")
	fmt.Fprintf(os.Stderr, "  add <symbol>                    Add a symbol to the active watchlist\n")
	fmt.Fprintf(os.Stderr, "  rm <symbol>                     Remove a symbol from the active watchlist\n")
	fmt.Fprintf(os.Stderr, "  compare <sym,sym,...> [period]  Compare quote stats\n")
	fmt.Fprintf(os.Stderr, "  portfolio                       Show broker holdings\n")
	fmt.Fprintf(os.Stderr, "  alerts                          List active alerts\n")
	fmt.Fprintf(os.Stderr, "  alert <symbol> <above|below> <price> [note]\n")
	fmt.Fprintf(os.Stderr, "  unalert <id>                    Delete an alert\n")
	fmt.Fprintf(os.Stderr, "  fired                           List fired alerts\n")
	fmt.Fprintf(os.Stderr, "  clear-fired                     Remove all fired alerts\n")
	fmt.Fprintf(os.Stderr, "  check                           Run an alert sweep now\n")
	fmt.Fprintf(os.Stderr, "  news <symbol>                   Show recent headlines\n")
	fmt.Fprintf(os.Stderr, "\nServer URL comes from MARKETDESK_URL (default http://127.0.0.1:8087).\n")
}

func main() {
	_ = godotenv.Load()

	flag.Usage = usage
	flag.Parse()
	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}

	baseURL := os.Getenv("MARKETDESK_URL")
	if baseURL == "" {
		baseURL = "http://127.0.0.1:8087"
	}
	client := marketdesk.NewClient(baseURL)
	ctx := context.Background()

	if err := run(ctx, client, args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, client *marketdesk.Client, args []string) error {
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "version":
		fmt.Printf("marketdesk-cli %s\n", version)
		return nil

	case "lists":
		lists, err := client.Watchlists(ctx)
		if err != nil {
			return err
		}
		for _, name := range lists.Names {
			marker := " "
			if name == lists.Active {
				marker = "*"
			}
			fmt.Printf("%s %s\n", marker, name)
		}
		return nil

	case "use":
		if len(rest) != 1 {
			return fmt.Errorf("usage: use <name>")
		}
		return client.SetActiveWatchlist(ctx, rest[0])

	case "create":
		if len(rest) != 1 {
			return fmt.Errorf("usage: create <name>")
		}
		return client.CreateWatchlist(ctx, rest[0])

	case "drop":
		if len(rest) != 1 {
			return fmt.Errorf("usage: drop <name>")
		}
		return client.DeleteWatchlist(ctx, rest[0])

	case "watch":
		wl, err := client.ActiveWatchlist(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s\n", wl.Name, strings.Join(wl.Symbols, " "))
		return nil

	case "add":
		if len(rest) != 1 {
			return fmt.Errorf("usage: add <symbol>")
		}
		return client.AddSymbol(ctx, rest[0])

	case "rm":
		if len(rest) != 1 {
			return fmt.Errorf("usage: rm <symbol>")
		}
		return client.RemoveSymbol(ctx, rest[0])

	case "compare":
		if len(rest) < 1 {
			return fmt.Errorf("usage: compare <sym,sym,...> [period]")
		}
		period := ""
		if len(rest) > 1 {
			period = rest[1]
		}
		cmp, err := client.Compare(ctx, strings.Split(rest[0], ","), period)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SYMBOL\tPRICE\tRETURN%\tVOL%\tVOLUME\tHIGH\tLOW")
		for _, q := range cmp.Quotes {
			fmt.Fprintf(w, "%s\t%.2f\t%.2f\t%.2f\t%d\t%.2f\t%.2f\n",
				q.Symbol, q.CurrentPrice, q.ReturnPct, q.Volatility, q.Volume, q.High, q.Low)
		}
		return w.Flush()

	case "portfolio":
		p, err := client.Portfolio(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SYMBOL\tQTY\tVALUE")
		for _, h := range p.Holdings {
			fmt.Fprintf(w, "%s\t%.2f\t%.2f\n", h.Symbol, h.Qty, h.MarketValue)
		}
		return w.Flush()

	case "alerts":
		alerts, err := client.Alerts(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSYMBOL\tKIND\tTARGET\tNOTE")
		for _, a := range alerts {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", a.ID, a.Symbol, a.Kind, a.TargetPrice, a.Note)
		}
		return w.Flush()

	case "alert":
		if len(rest) < 3 {
			return fmt.Errorf("usage: alert <symbol> <above|below> <price> [note]")
		}
		price, err := decimal.NewFromString(rest[2])
		if err != nil {
			return fmt.Errorf("invalid price %q", rest[2])
		}
		note := ""
		if len(rest) > 3 {
			note = strings.Join(rest[3:], " ")
		}
		a, err := client.CreateAlert(ctx, rest[0], rest[1], price, note)
		if err != nil {
			return err
		}
		fmt.Printf("created %s: %s %s %s\n", a.ID, a.Symbol, a.Kind, a.TargetPrice)
		return nil

	case "unalert":
		if len(rest) != 1 {
			return fmt.Errorf("usage: unalert <id>")
		}
		return client.DeleteAlert(ctx, rest[0])

	case "fired":
		alerts, err := client.FiredAlerts(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSYMBOL\tKIND\tTARGET\tFIRED AT\tPRICE")
		for _, a := range alerts {
			firedAt, firedPrice := "", ""
			if a.FiredAt != nil {
				firedAt = a.FiredAt.Format("2006-01-02 15:04:05")
			}
			if a.FiredPrice != nil {
				firedPrice = a.FiredPrice.String()
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				a.ID, a.Symbol, a.Kind, a.TargetPrice, firedAt, firedPrice)
		}
		return w.Flush()

	case "clear-fired":
		n, err := client.ClearFiredAlerts(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("cleared %d fired alerts\n", n)
		return nil

	case "check":
		alerts, err := client.CheckAlerts(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%d alerts still active\n", len(alerts))
		return nil

	case "news":
		if len(rest) != 1 {
			return fmt.Errorf("usage: news <symbol>")
		}
		articles, err := client.News(ctx, rest[0])
		if err != nil {
			return err
		}
		for _, a := range articles {
			fmt.Printf("%s [%s] %s\n", a.Time.Format("01-02 15:04"), a.Source, a.Headline)
		}
		return nil

	default:
		usage()
		return fmt.Errorf("unknown command: %s", cmd)
	}
}
