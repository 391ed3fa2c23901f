package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/urfave/cli/v2"

	natspkg "github.com/taranswap/taran/service/nats"
)

// subscribeCommand streams swap events from NATS JetStream.
func subscribeCommand() *cli.Command {
	return &cli.Command{
		Name:      "subscribe",
		Usage:     "Subscribe to swap events",
		ArgsUsage: "[direction]",
		Description: `Subscribe to swap events published to NATS JetStream.

Events are published to swaps.{direction} as sagas finish. Pass a direction
(local_to_local, local_to_crypto, crypto_to_local) to filter, or omit it to
stream everything.

Example:
  taran nats subscribe local_to_crypto --json`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "durable",
				Aliases: []string{"d"},
				Usage:   "Create a durable consumer (survives restarts)",
			},
			&cli.StringFlag{
				Name:  "consumer-name",
				Usage: "Consumer name (required for durable)",
				Value: "taran-cli",
			},
		},
		Action: func(c *cli.Context) error {
			subject := "swaps.*"
			if c.NArg() > 0 {
				subject = "swaps." + c.Args().Get(0)
			}

			return streamSwapEvents(subject, c.String("nats-url"),
				c.Bool("durable"), c.String("consumer-name"), c.Bool("json"))
		},
	}
}

// inspectStreamCommand shows the state of the swap event stream.
func inspectStreamCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect-stream",
		Usage: "Show swap event stream info",
		Action: func(c *cli.Context) error {
			nc, err := nats.Connect(c.String("nats-url"))
			if err != nil {
				return fmt.Errorf("failed to connect to NATS: %w", err)
			}
			defer nc.Close()

			js, err := jetstream.New(nc)
			if err != nil {
				return fmt.Errorf("failed to create JetStream context: %w", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			stream, err := js.Stream(ctx, natspkg.StreamName)
			if err != nil {
				return fmt.Errorf("failed to get stream %s: %w", natspkg.StreamName, err)
			}

			info, err := stream.Info(ctx)
			if err != nil {
				return fmt.Errorf("failed to get stream info: %w", err)
			}

			if c.Bool("json") {
				return outputJSON(info)
			}

			fmt.Printf("Stream:    %s\n", info.Config.Name)
			fmt.Printf("Subjects:  %v\n", info.Config.Subjects)
			fmt.Printf("Messages:  %d\n", info.State.Msgs)
			fmt.Printf("Bytes:     %d\n", info.State.Bytes)
			fmt.Printf("First Seq: %d\n", info.State.FirstSeq)
			fmt.Printf("Last Seq:  %d\n", info.State.LastSeq)
			fmt.Printf("Consumers: %d\n", info.State.Consumers)
			return nil
		},
	}
}

// streamSwapEvents connects to NATS and streams swap events until interrupted.
func streamSwapEvents(subject, natsURL string, durable bool, consumerName string, jsonOutput bool) error {
	nc, err := nats.Connect(natsURL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer nc.Close()

	js, err := jetstream.New(nc)
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if !jsonOutput {
		fmt.Printf("Subscribing to: %s\n", subject)
		fmt.Printf("   NATS: %s\n", natsURL)
		if durable {
			fmt.Printf("   Consumer: %s (durable)\n", consumerName)
		}
		fmt.Printf("\nWaiting for swap events... (Ctrl-C to exit)\n\n")
	}

	consumerConfig := jetstream.ConsumerConfig{
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	}
	if durable {
		consumerConfig.Durable = consumerName
		consumerConfig.Name = consumerName
	}

	cons, err := js.CreateOrUpdateConsumer(context.Background(), natspkg.StreamName, consumerConfig)
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	msgChan := make(chan jetstream.Msg, 10)

	go func() {
		_, _ = cons.Consume(func(msg jetstream.Msg) {
			msgChan <- msg
		})
	}()

	count := 0
	for {
		select {
		case msg := <-msgChan:
			var event natspkg.SwapEvent
			if err := json.Unmarshal(msg.Data(), &event); err != nil {
				fmt.Fprintf(os.Stderr, "Error parsing event: %v\n", err)
				msg.Ack()
				continue
			}

			count++

			if jsonOutput {
				data, _ := json.Marshal(event)
				fmt.Println(string(data))
			} else {
				fmt.Printf("Swap event (#%d)\n", count)
				fmt.Printf("   Swap ID:   %s\n", event.SwapID)
				fmt.Printf("   Direction: %s\n", event.Direction)
				fmt.Printf("   Outcome:   %s\n", event.Outcome)
				fmt.Printf("   Send:      %s %s\n", event.SendAmount, event.SendCurrency)
				fmt.Printf("   Receive:   %s %s\n", event.ReceiveAmount, event.ReceiveCurrency)
				if event.FailureReason != "" {
					fmt.Printf("   Reason:    %s\n", event.FailureReason)
				}
				fmt.Printf("   Published: %s\n\n", event.PublishedAt.Format(time.RFC3339))
			}

			msg.Ack()

		case <-sigChan:
			if !jsonOutput {
				fmt.Printf("\nReceived %d swap events\n", count)
			}
			return nil
		}
	}
}
