package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"

	"github.com/taranswap/taran/client"
)

func swapCommands() *cli.Command {
	return &cli.Command{
		Name:  "swap",
		Usage: "Swap commands (HTTP API)",
		Subcommands: []*cli.Command{
			swapSubmitCommand(),
			swapGetCommand(),
			swapListCommand(),
			swapAwaitCommand(),
			quoteCommand(),
			currenciesCommand(),
			withdrawStatusCommand(),
		},
	}
}

// newAPIClient builds a client from the global server-url flag.
func newAPIClient(c *cli.Context, timeout time.Duration) *client.Client {
	var httpClient *http.Client
	if timeout > 0 {
		httpClient = &http.Client{Timeout: timeout}
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError, // Only errors to stderr
	}))

	return client.NewClient(c.String("server-url"), httpClient, logger)
}

func swapSubmitCommand() *cli.Command {
	return &cli.Command{
		Name:  "submit",
		Usage: "Submit a swap",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "user",
				Aliases:  []string{"u"},
				Usage:    "User ID submitting the swap",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "amount",
				Aliases:  []string{"a"},
				Usage:    "Amount to send (decimal)",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "from",
				Aliases:  []string{"f"},
				Usage:    "Currency to send (e.g. EvcPlus)",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "to",
				Aliases:  []string{"t"},
				Usage:    "Currency to receive (e.g. \"USDT (BEP20)\")",
				Required: true,
			},
			&cli.BoolFlag{
				Name:    "wait",
				Aliases: []string{"w"},
				Usage:   "Block until the swap reaches a terminal outcome",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "How long to wait with --wait",
				Value: 5 * time.Minute,
			},
		},
		Action: func(c *cli.Context) error {
			cl := newAPIClient(c, 0)

			result, err := cl.SubmitSwap(context.Background(), client.SubmitSwapParams{
				UserID:          c.String("user"),
				SendAmount:      c.String("amount"),
				SendCurrency:    c.String("from"),
				ReceiveCurrency: c.String("to"),
			})
			if err != nil {
				return fmt.Errorf("failed to submit swap: %w", err)
			}

			if !c.Bool("wait") {
				if c.Bool("json") {
					return outputJSON(result)
				}
				fmt.Printf("Swap submitted\n")
				fmt.Printf("  Swap ID:     %s\n", result.SwapID)
				fmt.Printf("  Direction:   %s\n", result.Direction)
				fmt.Printf("  Service Fee: %s\n", result.ServiceFee)
				fmt.Printf("  You Receive: %s\n", result.NetReceiveAmount)
				return nil
			}

			if !c.Bool("json") {
				fmt.Fprintf(os.Stderr, "Waiting for swap %s...\n", result.SwapID)
			}

			swap, err := cl.AwaitSwap(context.Background(), result.SwapID, client.AwaitOptions{
				Timeout: c.Duration("timeout"),
			})
			if err != nil {
				return fmt.Errorf("failed waiting for swap: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(swap)
			}
			printSwap(swap)
			return nil
		},
	}
}

func swapGetCommand() *cli.Command {
	return &cli.Command{
		Name:      "get",
		Usage:     "Get swap status",
		ArgsUsage: "<swap-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: swap id")
			}

			cl := newAPIClient(c, 0)
			swap, err := cl.GetSwap(context.Background(), c.Args().First())
			if err != nil {
				return fmt.Errorf("failed to get swap: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(swap)
			}
			printSwap(swap)
			return nil
		},
	}
}

func swapListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List a user's swaps",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "user",
				Aliases:  []string{"u"},
				Usage:    "User ID",
				Required: true,
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Value:   50,
			},
		},
		Action: func(c *cli.Context) error {
			cl := newAPIClient(c, 0)
			swaps, err := cl.ListSwaps(context.Background(), c.String("user"), c.Int("limit"))
			if err != nil {
				return fmt.Errorf("failed to list swaps: %w", err)
			}
			return outputJSON(swaps)
		},
	}
}

func swapAwaitCommand() *cli.Command {
	return &cli.Command{
		Name:      "await",
		Usage:     "Block until a swap reaches a terminal outcome",
		ArgsUsage: "<swap-id>",
		Description: `Poll the server until the swap completes or is rejected.

Optional jq filters run against the final swap JSON; the command exits
non-zero unless every filter evaluates to true.

Example:
  taran swap await 7c9e... --filter '.outcome == "completed"'`,
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Usage:   "How long to wait for the outcome",
				Value:   5 * time.Minute,
			},
			&cli.DurationFlag{
				Name:  "poll-interval",
				Usage: "How often to poll",
				Value: 2 * time.Second,
			},
			&cli.StringSliceFlag{
				Name:  "filter",
				Usage: "jq expression the final swap must satisfy (repeatable)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: swap id")
			}

			// Compile jq filters up front so a bad expression fails fast.
			filters, err := compileJQFilters(c.StringSlice("filter"))
			if err != nil {
				return err
			}

			cl := newAPIClient(c, c.Duration("timeout")+30*time.Second)
			swap, err := cl.AwaitSwap(context.Background(), c.Args().First(), client.AwaitOptions{
				PollInterval: c.Duration("poll-interval"),
				Timeout:      c.Duration("timeout"),
			})
			if err != nil {
				return fmt.Errorf("failed waiting for swap: %w", err)
			}

			matched, err := swapMatchesFilters(swap, filters)
			if err != nil {
				return err
			}

			if c.Bool("json") {
				if err := outputJSON(swap); err != nil {
					return err
				}
			} else {
				printSwap(swap)
			}

			if !matched {
				return fmt.Errorf("swap outcome did not satisfy filters")
			}
			return nil
		},
	}
}

func quoteCommand() *cli.Command {
	return &cli.Command{
		Name:  "quote",
		Usage: "Get a fee quote without starting a swap",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "amount",
				Aliases:  []string{"a"},
				Required: true,
			},
			&cli.StringFlag{
				Name:     "from",
				Aliases:  []string{"f"},
				Required: true,
			},
			&cli.StringFlag{
				Name:     "to",
				Aliases:  []string{"t"},
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			cl := newAPIClient(c, 0)
			quote, err := cl.GetQuote(context.Background(),
				c.String("amount"), c.String("from"), c.String("to"))
			if err != nil {
				return fmt.Errorf("failed to get quote: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(quote)
			}

			fmt.Printf("Direction:    %s\n", quote.Direction)
			fmt.Printf("Send:         %s %s\n", quote.SendAmount, quote.SendCurrency)
			fmt.Printf("Fee Rate:     %s\n", quote.ServiceFeeRate)
			fmt.Printf("Service Fee:  %s\n", quote.ServiceFee)
			fmt.Printf("You Receive:  %s %s\n", quote.NetReceiveAmount, quote.ReceiveCurrency)
			return nil
		},
	}
}

func currenciesCommand() *cli.Command {
	return &cli.Command{
		Name:  "currencies",
		Usage: "List supported currencies",
		Action: func(c *cli.Context) error {
			cl := newAPIClient(c, 0)
			currencies, err := cl.ListCurrencies(context.Background())
			if err != nil {
				return fmt.Errorf("failed to list currencies: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(currencies)
			}

			for _, cur := range currencies {
				if cur.Network != "" {
					fmt.Printf("%s (%s, network %s)\n", cur.Symbol, cur.Class, cur.Network)
				} else {
					fmt.Printf("%s (%s)\n", cur.Symbol, cur.Class)
				}
			}
			return nil
		},
	}
}

func withdrawStatusCommand() *cli.Command {
	return &cli.Command{
		Name:      "withdraw-status",
		Usage:     "Get the exchange-side status of a crypto withdrawal",
		ArgsUsage: "<withdraw-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: withdraw id")
			}

			cl := newAPIClient(c, 0)
			status, err := cl.GetWithdrawStatus(context.Background(), c.Args().First())
			if err != nil {
				return fmt.Errorf("failed to get withdrawal status: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(status)
			}

			fmt.Printf("Withdraw ID: %s\n", status.WithdrawID)
			fmt.Printf("Status:      %d\n", status.Status)
			if status.TxHash != "" {
				fmt.Printf("Tx Hash:     %s\n", status.TxHash)
			}
			return nil
		},
	}
}

// compileJQFilters parses and compiles a set of jq expressions.
func compileJQFilters(exprs []string) ([]*gojq.Code, error) {
	compiled := make([]*gojq.Code, len(exprs))
	for i, expr := range exprs {
		query, err := gojq.Parse(expr)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", expr, err)
		}
		compiled[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", expr, err)
		}
	}
	return compiled, nil
}

// swapMatchesFilters runs every compiled jq filter against the swap JSON.
// All filters must evaluate to true.
func swapMatchesFilters(swap *client.Swap, filters []*gojq.Code) (bool, error) {
	if len(filters) == 0 {
		return true, nil
	}

	// Round-trip through JSON so jq sees the wire representation.
	raw, err := json.Marshal(swap)
	if err != nil {
		return false, fmt.Errorf("failed to marshal swap: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return false, fmt.Errorf("failed to unmarshal swap: %w", err)
	}

	for _, code := range filters {
		iter := code.Run(doc)
		v, ok := iter.Next()
		if !ok {
			return false, nil
		}
		if err, isErr := v.(error); isErr {
			return false, fmt.Errorf("jq filter error: %w", err)
		}
		if b, isBool := v.(bool); !isBool || !b {
			return false, nil
		}
	}
	return true, nil
}

// printSwap renders a swap for human output.
func printSwap(swap *client.Swap) {
	fmt.Printf("ID:              %s\n", swap.ID)
	fmt.Printf("Direction:       %s\n", swap.Direction)
	fmt.Printf("Send:            %s %s\n", swap.SendAmount, swap.SendCurrency)
	fmt.Printf("Receive:         %s %s\n", swap.ReceiveAmount, swap.ReceiveCurrency)
	fmt.Printf("Step:            %s\n", swap.Step)
	fmt.Printf("Outcome:         %s\n", formatOptional(swap.Outcome))
	fmt.Printf("Failure Reason:  %s\n", formatOptional(swap.FailureReason))
	fmt.Printf("Gateway Txn:     %s\n", formatOptional(swap.GatewayTxnID))
	fmt.Printf("Withdraw ID:     %s\n", formatOptional(swap.WithdrawID))
	fmt.Printf("Chain Tx:        %s\n", formatOptional(swap.ChainTxHash))
}
