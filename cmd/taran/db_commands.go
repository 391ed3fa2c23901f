package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"

	"github.com/taranswap/taran/service/db"
)

func listSwapsCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-swaps",
		Usage:   "List a user's swaps",
		Aliases: []string{"ls"},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "user",
				Aliases:  []string{"u"},
				Usage:    "User ID to list swaps for",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "outcome",
				Aliases: []string{"o"},
				Usage:   "Filter by outcome (completed, rejected, pending)",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of swaps",
				Value:   50,
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			swaps, err := store.ListSwaps(context.Background(), c.String("user"), int32(c.Int("limit")), 0)
			if err != nil {
				return fmt.Errorf("failed to list swaps: %w", err)
			}

			// Filter by outcome if specified. "pending" selects swaps with no
			// terminal outcome yet.
			outcomeFilter := c.String("outcome")
			if outcomeFilter != "" {
				filtered := make([]*db.Swap, 0)
				for _, s := range swaps {
					switch {
					case outcomeFilter == "pending" && s.Outcome == nil:
						filtered = append(filtered, s)
					case s.Outcome != nil && *s.Outcome == outcomeFilter:
						filtered = append(filtered, s)
					}
				}
				swaps = filtered
			}

			if c.Bool("json") {
				return outputJSON(swaps)
			}

			// Pretty table output
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tDIRECTION\tSEND\tRECEIVE\tSTEP\tOUTCOME\tCREATED")
			for _, s := range swaps {
				fmt.Fprintf(w, "%s\t%s\t%s %s\t%s %s\t%s\t%s\t%s\n",
					s.ID,
					s.Direction,
					s.SendAmount.String(), s.SendCurrency,
					s.ReceiveAmount.String(), s.ReceiveCurrency,
					s.Step,
					formatOptional(s.Outcome),
					s.CreatedAt.Format(time.RFC3339),
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d swaps\n", len(swaps))
			return nil
		},
	}
}

func getSwapCommand() *cli.Command {
	return &cli.Command{
		Name:      "get-swap",
		Usage:     "Get swap details",
		Aliases:   []string{"get"},
		ArgsUsage: "<swap-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: swap id")
			}

			id := c.Args().First()
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			swap, err := store.GetSwap(context.Background(), id)
			if err != nil {
				return fmt.Errorf("failed to get swap: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(swap)
			}

			// Pretty output
			fmt.Printf("ID:              %s\n", swap.ID)
			fmt.Printf("User:            %s\n", swap.UserID)
			fmt.Printf("Direction:       %s\n", swap.Direction)
			fmt.Printf("Send:            %s %s\n", swap.SendAmount.String(), swap.SendCurrency)
			fmt.Printf("Receive:         %s %s\n", swap.ReceiveAmount.String(), swap.ReceiveCurrency)
			fmt.Printf("Payer Ref:       %s\n", formatOptional(swap.PayerRef))
			fmt.Printf("Payee Ref:       %s\n", formatOptional(swap.PayeeRef))
			fmt.Printf("Step:            %s\n", swap.Step)
			fmt.Printf("Outcome:         %s\n", formatOptional(swap.Outcome))
			fmt.Printf("Failure Reason:  %s\n", formatOptional(swap.FailureReason))
			fmt.Printf("Gateway Txn:     %s\n", formatOptional(swap.GatewayTxnID))
			fmt.Printf("Withdraw ID:     %s\n", formatOptional(swap.WithdrawID))
			fmt.Printf("Chain Tx:        %s\n", formatOptional(swap.ChainTxHash))
			fmt.Printf("Compensated:     %v\n", swap.Compensated)
			fmt.Printf("Created:         %s\n", swap.CreatedAt.Format(time.RFC3339))
			fmt.Printf("Updated:         %s\n", swap.UpdatedAt.Format(time.RFC3339))

			return nil
		},
	}
}

func listTransactionsCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-transactions",
		Usage:   "List a user's settled transaction history",
		Aliases: []string{"txs"},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "user",
				Aliases:  []string{"u"},
				Usage:    "User ID to list transactions for",
				Required: true,
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of transactions",
				Value:   50,
			},
		},
		Action: func(c *cli.Context) error {
			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			txns, err := store.ListTransactions(context.Background(), c.String("user"), int32(c.Int("limit")), 0)
			if err != nil {
				return fmt.Errorf("failed to list transactions: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(txns)
			}

			// Pretty table output
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SWAP ID\tDIRECTION\tSEND\tRECEIVE\tEXTERNAL REF\tSETTLED")
			for _, tx := range txns {
				fmt.Fprintf(w, "%s\t%s\t%s %s\t%s %s\t%s\t%s\n",
					tx.SwapID,
					tx.Direction,
					tx.SendAmount.String(), tx.SendCurrency,
					tx.ReceiveAmount.String(), tx.ReceiveCurrency,
					tx.ExternalRef,
					tx.CreatedAt.Format(time.RFC3339),
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d transactions\n", len(txns))
			return nil
		},
	}
}

// Helper function to connect to database
func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" && c.App != nil {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	pool, err := pgxpool.New(context.Background(), dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db.NewStore(pool), pool.Close, nil
}

// outputJSON writes a value as indented JSON to stdout.
func outputJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatOptional renders a nullable string field for human output.
func formatOptional(s *string) string {
	if s == nil || *s == "" {
		return "(none)"
	}
	return *s
}
