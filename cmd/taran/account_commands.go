package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/taranswap/taran/client"
)

func accountCommands() *cli.Command {
	return &cli.Command{
		Name:  "accounts",
		Usage: "Account book commands (HTTP API)",
		Subcommands: []*cli.Command{
			accountAddCommand(),
			accountListCommand(),
			accountRemoveCommand(),
		},
	}
}

func accountAddCommand() *cli.Command {
	return &cli.Command{
		Name:    "add",
		Aliases: []string{"set"},
		Usage:   "Add or replace an account book entry",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "user",
				Aliases:  []string{"u"},
				Usage:    "User ID",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "label",
				Aliases:  []string{"l"},
				Usage:    "Currency label (e.g. EvcPlus, \"USDT (BEP20)\")",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "number",
				Usage: "Mobile money number (for local currencies)",
			},
			&cli.StringFlag{
				Name:  "address",
				Usage: "Wallet address (for crypto currencies)",
			},
		},
		Action: func(c *cli.Context) error {
			cl := newAPIClient(c, 0)

			account, err := cl.UpsertAccount(context.Background(), client.UpsertAccountParams{
				UserID:  c.String("user"),
				Label:   c.String("label"),
				Number:  c.String("number"),
				Address: c.String("address"),
			})
			if err != nil {
				return fmt.Errorf("failed to save account: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(account)
			}

			fmt.Printf("Account saved\n")
			fmt.Printf("  Label: %s\n", account.Label)
			fmt.Printf("  Kind:  %s\n", account.Kind)
			if account.Number != nil {
				fmt.Printf("  Number: %s\n", *account.Number)
			}
			if account.Address != nil {
				fmt.Printf("  Address: %s\n", *account.Address)
			}
			return nil
		},
	}
}

func accountListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List a user's account book",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "user",
				Aliases:  []string{"u"},
				Usage:    "User ID",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			cl := newAPIClient(c, 0)
			accounts, err := cl.ListAccounts(context.Background(), c.String("user"))
			if err != nil {
				return fmt.Errorf("failed to list accounts: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(accounts)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "LABEL\tKIND\tTARGET\tUPDATED")
			for _, a := range accounts {
				target := formatOptional(a.Number)
				if a.Kind == "crypto" {
					target = formatOptional(a.Address)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					a.Label, a.Kind, target, a.UpdatedAt.Format(time.RFC3339))
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d accounts\n", len(accounts))
			return nil
		},
	}
}

func accountRemoveCommand() *cli.Command {
	return &cli.Command{
		Name:      "remove",
		Aliases:   []string{"rm"},
		Usage:     "Remove an account book entry",
		ArgsUsage: "<label>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "user",
				Aliases:  []string{"u"},
				Usage:    "User ID",
				Required: true,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: account label")
			}

			label := c.Args().First()
			cl := newAPIClient(c, 0)
			if err := cl.DeleteAccount(context.Background(), c.String("user"), label); err != nil {
				return fmt.Errorf("failed to remove account: %w", err)
			}

			if !c.Bool("json") {
				fmt.Printf("Account %q removed\n", label)
			}
			return nil
		},
	}
}
