// Command myfinances shows expenses, income and summaries from the finance API
// converted into a chosen currency.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"myfinances/internal/amqp"
	"myfinances/internal/cli"
	"myfinances/internal/core"
	applog "myfinances/internal/log"
	"myfinances/internal/worker"
)

const usage = `usage: myfinances [-currency C] <command> [flags]

commands:
  expenses [-type T]          list expenses, optionally of one category
  income                      list income
  summary                     per-category totals
  convert -amount X -to C     convert an amount from the base currency
  rates [-refresh]            show the exchange rate table
  all [-refresh]              load everything and print an overview
  watch [-overview]           print rate updates published by the worker
`

var errUsage = errors.New("usage")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("myfinances", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.Usage = func() { fmt.Fprint(stderr, usage) }
	currencyFlag := global.String("currency", "", "display currency (default CAD for listings, EUR for summaries)")
	if err := global.Parse(args); err != nil {
		return 2
	}
	if global.NArg() == 0 {
		global.Usage()
		return 2
	}

	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig(cli.BootstrapLogger())
	logger := cli.SetupLogger(cfg)

	ctx, _ := cli.GracefulShutdown(logger, 10*time.Second, nil)

	app, err := cli.NewApp(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("Failed to release resources", applog.FieldError, err)
		}
	}()
	app.Caches.StartCleanup(cfg.SweepInterval)

	cmd, cmdArgs := global.Arg(0), global.Args()[1:]
	c := &command{app: app, out: stdout, errOut: stderr, currency: *currencyFlag}

	switch cmd {
	case "expenses":
		err = c.expenses(ctx, cmdArgs)
	case "income":
		err = c.income(ctx, cmdArgs)
	case "summary":
		err = c.summary(ctx, cmdArgs)
	case "convert":
		err = c.convert(ctx, cmdArgs)
	case "rates":
		err = c.rates(ctx, cmdArgs)
	case "all":
		err = c.all(ctx, cmdArgs)
	case "watch":
		err = c.watch(ctx, cmdArgs)
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", cmd)
		global.Usage()
		return 2
	}

	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
		return 2
	case core.IsAuthError(err):
		fmt.Fprintf(stderr, "authentication failed: %v\n", err)
	case core.IsNetworkError(err):
		fmt.Fprintf(stderr, "could not reach the finance API: %v\n", err)
	case errors.Is(err, context.Canceled):
		return 130
	default:
		fmt.Fprintf(stderr, "error: %v\n", err)
	}
	return 1
}

type command struct {
	app      *cli.App
	out      io.Writer
	errOut   io.Writer
	currency string
}

// displayCurrency returns the -currency flag or def when it is unset.
func (c *command) displayCurrency(def core.CurrencyCode) (core.CurrencyCode, error) {
	if c.currency == "" {
		return def, nil
	}
	return parseDisplayCurrency(c.currency)
}

func parseDisplayCurrency(s string) (core.CurrencyCode, error) {
	code, err := core.ParseCurrencyCode(s)
	if err != nil {
		return "", err
	}
	if !code.IsSupported() {
		return "", fmt.Errorf("%w: %s is not one of %v", core.ErrInvalidCurrency, code, core.SupportedCurrencies)
	}
	return code, nil
}

func (c *command) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.errOut)
	return fs
}

func (c *command) expenses(ctx context.Context, args []string) error {
	fs := c.newFlagSet("expenses")
	typ := fs.String("type", "", "only expenses of this category")
	if err := fs.Parse(args); err != nil {
		return err
	}
	to, err := c.displayCurrency(core.CAD)
	if err != nil {
		return err
	}

	var records []core.Expense
	if *typ != "" {
		records, err = c.app.API.FetchExpensesByType(ctx, *typ)
	} else {
		records, err = c.app.API.FetchExpenses(ctx)
	}
	if err != nil {
		return err
	}
	c.app.Rates.RefreshIfNeeded(ctx)
	printEntries(c.out, expenseEntries(records), to, c.app.Rates)
	return nil
}

func (c *command) income(ctx context.Context, args []string) error {
	if err := c.newFlagSet("income").Parse(args); err != nil {
		return err
	}
	to, err := c.displayCurrency(core.CAD)
	if err != nil {
		return err
	}
	records, err := c.app.API.FetchIncome(ctx)
	if err != nil {
		return err
	}
	c.app.Rates.RefreshIfNeeded(ctx)
	printEntries(c.out, incomeEntries(records), to, c.app.Rates)
	return nil
}

func (c *command) summary(ctx context.Context, args []string) error {
	if err := c.newFlagSet("summary").Parse(args); err != nil {
		return err
	}
	to, err := c.displayCurrency(core.EUR)
	if err != nil {
		return err
	}
	items, err := c.app.API.FetchSummary(ctx)
	if err != nil {
		return err
	}
	c.app.Rates.RefreshIfNeeded(ctx)
	printSummary(c.out, items, to, c.app.Rates)
	return nil
}

func (c *command) convert(ctx context.Context, args []string) error {
	fs := c.newFlagSet("convert")
	amount := fs.Float64("amount", 0, "amount in the base currency")
	toFlag := fs.String("to", "", "target currency")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *toFlag == "" {
		fmt.Fprintln(c.errOut, "convert: -to is required")
		return errUsage
	}
	to, err := parseDisplayCurrency(*toFlag)
	if err != nil {
		return err
	}
	c.app.Rates.RefreshIfNeeded(ctx)
	base := c.app.Rates.Base()
	result := c.app.Rates.Convert(*amount, to)
	fmt.Fprintf(c.out, "%s = %s\n", core.FormatAmount(amount, base), core.FormatAmount(&result, to))
	return nil
}

func (c *command) rates(ctx context.Context, args []string) error {
	fs := c.newFlagSet("rates")
	refresh := fs.Bool("refresh", false, "fetch rates even if the table is fresh")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *refresh {
		if err := c.app.Rates.Refresh(ctx); err != nil && ctx.Err() != nil {
			return err
		}
	} else {
		c.app.Rates.RefreshIfNeeded(ctx)
	}
	printRates(c.out, c.app.Rates.Snapshot(), time.Now())
	return nil
}

func (c *command) all(ctx context.Context, args []string) error {
	fs := c.newFlagSet("all")
	refresh := fs.Bool("refresh", false, "ignore cached API responses")
	if err := fs.Parse(args); err != nil {
		return err
	}
	to, err := c.displayCurrency(core.CAD)
	if err != nil {
		return err
	}
	if *refresh {
		c.app.API.Invalidate()
	}
	o, err := c.app.API.FetchAll(ctx)
	if err != nil {
		return err
	}
	c.app.Rates.RefreshIfNeeded(ctx)
	printOverview(c.out, o, to, c.app.Rates)
	return nil
}

// watch applies rate updates published by another process until interrupted.
func (c *command) watch(ctx context.Context, args []string) error {
	fs := c.newFlagSet("watch")
	overview := fs.Bool("overview", false, "print the converted overview after every update")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if c.app.AMQP == nil {
		return errors.New("watch needs a reachable AMQP broker (AMQP_URL)")
	}
	w := worker.NewRatesWorker(c.app.Rates, nil, c.app.Config.RatesRefreshInterval, c.app.Logger)
	fmt.Fprintln(c.out, "Waiting for rate updates, press Ctrl+C to stop")
	err := c.app.AMQP.ConsumeRatesUpdated(ctx, func(ctx context.Context, msg *amqp.RatesUpdatedMessage) error {
		if err := w.HandleRatesUpdated(ctx, msg); err != nil {
			return err
		}
		printRates(c.out, c.app.Rates.Snapshot(), time.Now())
		if *overview {
			if err := c.all(ctx, nil); err != nil {
				c.app.Logger.WarnContext(ctx, "Failed to load overview", applog.FieldError, err)
			}
		}
		return nil
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
