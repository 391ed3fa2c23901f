package temporal

import (
	"context"
	"fmt"
	"log/slog"

	"go.temporal.io/sdk/client"
)

// Client wraps the Temporal SDK client with swap-specific operations.
type Client struct {
	client    client.Client
	taskQueue string
	logger    *slog.Logger
}

// NewClient creates a new Temporal client.
func NewClient(host, namespace, taskQueue string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("connecting to temporal",
		"host", host,
		"namespace", namespace,
		"task_queue", taskQueue,
	)

	c, err := client.Dial(client.Options{
		HostPort:  host,
		Namespace: namespace,
		Logger:    newTemporalLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Temporal: %w", err)
	}

	logger.Info("connected to temporal successfully")

	return &Client{
		client:    c,
		taskQueue: taskQueue,
		logger:    logger,
	}, nil
}

// StartSwap starts a swap workflow and returns without waiting for it to
// finish. The workflow id is derived from the swap id so a duplicate submit
// of the same swap cannot start a second saga.
func (c *Client) StartSwap(ctx context.Context, input SwapWorkflowInput) (string, error) {
	workflowID := swapWorkflowID(input.SwapID)

	c.logger.Info("starting swap workflow",
		"workflow_id", workflowID,
		"swap_id", input.SwapID,
		"send_currency", input.SendCurrency,
		"receive_currency", input.ReceiveCurrency,
	)

	run, err := c.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        workflowID,
		TaskQueue: c.taskQueue,
	}, SwapWorkflow, input)
	if err != nil {
		return "", fmt.Errorf("failed to start swap workflow: %w", err)
	}

	c.logger.Info("swap workflow started",
		"workflow_id", workflowID,
		"run_id", run.GetRunID(),
	)
	return run.GetRunID(), nil
}

// AwaitSwapResult blocks until the swap workflow finishes and returns its
// terminal result.
func (c *Client) AwaitSwapResult(ctx context.Context, swapID string) (*SwapWorkflowResult, error) {
	run := c.client.GetWorkflow(ctx, swapWorkflowID(swapID), "")

	var result SwapWorkflowResult
	if err := run.Get(ctx, &result); err != nil {
		return nil, fmt.Errorf("swap workflow failed: %w", err)
	}
	return &result, nil
}

// SDKClient returns the underlying Temporal SDK client for direct workflow operations.
func (c *Client) SDKClient() client.Client {
	return c.client
}

// TaskQueue returns the configured task queue for this client.
func (c *Client) TaskQueue() string {
	return c.taskQueue
}

// Close closes the Temporal client connection.
func (c *Client) Close() {
	c.logger.Info("closing temporal client")
	c.client.Close()
}

// swapWorkflowID generates the deterministic workflow id for a swap.
func swapWorkflowID(swapID string) string {
	return "swap-" + swapID
}

// temporalLogger adapts slog.Logger to Temporal's logger interface.
type temporalLogger struct {
	logger *slog.Logger
}

func newTemporalLogger(logger *slog.Logger) *temporalLogger {
	return &temporalLogger{logger: logger}
}

func (l *temporalLogger) Debug(msg string, keyvals ...interface{}) {
	l.logger.Debug(msg, keyvals...)
}

func (l *temporalLogger) Info(msg string, keyvals ...interface{}) {
	l.logger.Info(msg, keyvals...)
}

func (l *temporalLogger) Warn(msg string, keyvals ...interface{}) {
	l.logger.Warn(msg, keyvals...)
}

func (l *temporalLogger) Error(msg string, keyvals ...interface{}) {
	l.logger.Error(msg, keyvals...)
}
