package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"
	"go.temporal.io/api/workflowservice/v1"
	sdkclient "go.temporal.io/sdk/client"

	"github.com/taranswap/taran/service/temporal"
)

// getTemporalClient dials Temporal using the global flags.
func getTemporalClient(c *cli.Context) (sdkclient.Client, error) {
	temporalClient, err := sdkclient.Dial(sdkclient.Options{
		HostPort:  c.String("temporal-host"),
		Namespace: c.String("temporal-namespace"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to temporal: %w", err)
	}
	return temporalClient, nil
}

func listWorkflowsCommand() *cli.Command {
	return &cli.Command{
		Name:    "list-workflows",
		Usage:   "List swap workflow executions",
		Aliases: []string{"wf"},
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Maximum number of executions to list",
				Value:   50,
			},
		},
		Action: func(c *cli.Context) error {
			temporalClient, err := getTemporalClient(c)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			ctx := context.Background()
			resp, err := temporalClient.ListWorkflow(ctx, &workflowservice.ListWorkflowExecutionsRequest{
				Namespace: c.String("temporal-namespace"),
				PageSize:  int32(c.Int("limit")),
				Query:     "WorkflowType='SwapWorkflow'",
			})
			if err != nil {
				return fmt.Errorf("failed to list workflows: %w", err)
			}

			// Pretty table output
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "WORKFLOW ID\tRUN ID\tSTATUS\tSTARTED")
			for _, e := range resp.GetExecutions() {
				started := ""
				if e.GetStartTime() != nil {
					started = e.GetStartTime().AsTime().Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					e.GetExecution().GetWorkflowId(),
					e.GetExecution().GetRunId(),
					e.GetStatus().String(),
					started,
				)
			}
			w.Flush()

			fmt.Fprintf(os.Stderr, "\nTotal: %d workflows\n", len(resp.GetExecutions()))
			return nil
		},
	}
}

func awaitResultCommand() *cli.Command {
	return &cli.Command{
		Name:      "await-result",
		Usage:     "Block until a swap workflow finishes and print its result",
		ArgsUsage: "<swap-id>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: swap id")
			}

			swapID := c.Args().First()

			logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
				Level: slog.LevelError, // Only errors to stderr
			}))

			temporalClient, err := temporal.NewClient(
				c.String("temporal-host"),
				c.String("temporal-namespace"),
				"", // task queue not needed to await
				logger,
			)
			if err != nil {
				return err
			}
			defer temporalClient.Close()

			result, err := temporalClient.AwaitSwapResult(context.Background(), swapID)
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return outputJSON(result)
			}

			fmt.Printf("Swap ID:     %s\n", result.SwapID)
			fmt.Printf("Direction:   %s\n", result.Direction)
			fmt.Printf("Outcome:     %s\n", result.Outcome)
			if result.FailureReason != "" {
				fmt.Printf("Reason:      %s\n", result.FailureReason)
			}
			fmt.Printf("Send:        %s\n", result.SendAmount.String())
			fmt.Printf("Service Fee: %s\n", result.ServiceFee.String())
			fmt.Printf("Net Receive: %s\n", result.NetReceiveAmount.String())
			return nil
		},
	}
}
