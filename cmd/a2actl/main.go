// Command a2actl is a cobra-based CLI wrapper around client.Client, letting
// an operator drive message/send, tasks/get, tasks/list, tasks/cancel, and
// tasks/resubscribe against a running a2aserver without writing Go code.
//
// Grounded on the same flag/cobra conventions as a2aserver (cuemby-warren
// cmd/warren), wired against the transport-agnostic client.JSONRPCCaller
// this module already provides.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"goa.design/a2a/client"
	"goa.design/a2a/taskstore"
	"goa.design/a2a/types"
)

func main() {
	var endpoint string

	root := &cobra.Command{
		Use:   "a2actl",
		Short: "Command-line client for an A2A agent",
	}
	root.PersistentFlags().StringVar(&endpoint, "endpoint", "http://localhost:8080/a2a", "JSON-RPC endpoint URL")

	root.AddCommand(
		sendCmd(&endpoint),
		getCmd(&endpoint),
		listCmd(&endpoint),
		cancelCmd(&endpoint),
		resubscribeCmd(&endpoint),
		cardCmd(&endpoint),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newClient(endpoint string, streaming bool, onEvent func(types.Event)) *client.Client {
	caller := client.NewJSONRPCCaller(endpoint)
	opts := []client.Option{}
	if streaming {
		opts = append(opts, client.WithStreaming(true))
	}
	if onEvent != nil {
		opts = append(opts, client.WithConsumer(func(_ context.Context, _ *types.Task, ev types.Event) {
			onEvent(ev)
		}))
	}
	return client.New(caller, opts...)
}

func printJSON(v any) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return
	}
	fmt.Println(string(out))
}

func sendCmd(endpoint *string) *cobra.Command {
	var taskID, text string
	var stream bool
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a message (message/send)",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(*endpoint, stream, func(ev types.Event) {
				if stream {
					printJSON(ev)
				}
			})
			msg := &types.Message{
				MessageID: "",
				Role:      types.RoleUser,
				TaskID:    taskID,
				Parts:     []*types.Part{{Type: "text", Text: text}},
			}
			task, err := c.SendMessage(cmd.Context(), msg)
			if err != nil {
				return err
			}
			printJSON(task)
			return nil
		},
	}
	cmd.Flags().StringVar(&taskID, "task", "", "task ID (empty starts a new task)")
	cmd.Flags().StringVar(&text, "text", "", "message text")
	cmd.Flags().BoolVar(&stream, "stream", false, "drive the call over the streaming transport")
	return cmd
}

func getCmd(endpoint *string) *cobra.Command {
	var historyLength int
	cmd := &cobra.Command{
		Use:   "get <taskId>",
		Short: "Fetch a task (tasks/get)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(*endpoint, false, nil)
			task, err := c.GetTask(cmd.Context(), args[0], historyLength)
			if err != nil {
				return err
			}
			printJSON(task)
			return nil
		},
	}
	cmd.Flags().IntVar(&historyLength, "history", 0, "maximum history entries to include")
	return cmd
}

func listCmd(endpoint *string) *cobra.Command {
	var contextID string
	var pageSize int
	var pageToken string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks (tasks/list)",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(*endpoint, false, nil)
			page, err := c.ListTasks(cmd.Context(), taskstore.ListFilter{
				ContextID: contextID,
				PageSize:  pageSize,
				PageToken: pageToken,
			})
			if err != nil {
				return err
			}
			printJSON(page)
			return nil
		},
	}
	cmd.Flags().StringVar(&contextID, "context", "", "filter by context ID")
	cmd.Flags().IntVar(&pageSize, "page-size", 0, "maximum tasks to return")
	cmd.Flags().StringVar(&pageToken, "page-token", "", "pagination token from a previous call")
	return cmd
}

func cancelCmd(endpoint *string) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <taskId>",
		Short: "Cancel a task (tasks/cancel)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(*endpoint, false, nil)
			task, err := c.CancelTask(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printJSON(task)
			return nil
		},
	}
}

func resubscribeCmd(endpoint *string) *cobra.Command {
	return &cobra.Command{
		Use:   "resubscribe <taskId>",
		Short: "Resubscribe to a task's event stream (tasks/resubscribe)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(*endpoint, false, func(ev types.Event) { printJSON(ev) })
			return c.Resubscribe(cmd.Context(), args[0])
		},
	}
}

func cardCmd(endpoint *string) *cobra.Command {
	return &cobra.Command{
		Use:   "card",
		Short: "Fetch the agent card",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := newClient(*endpoint, false, nil)
			card, err := c.AgentCard(cmd.Context())
			if err != nil {
				return err
			}
			printJSON(card)
			return nil
		},
	}
}
