// Command client is a terminal counterpart to cmd/server: it opens a
// WebSocket to a running server and issues a single insert, delete, read,
// or wait operation against the shared buffer.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/spf13/cobra"
	"nhooyr.io/websocket"

	"github.com/avian-editor/avian/internal/protocol"
)

type options struct {
	host    string
	port    string
	secure  bool
	showRev bool
}

func main() {
	opts := &options{}

	root := &cobra.Command{
		Use:   "avian-client",
		Short: "Talk to a running avian server over its WebSocket endpoint",
	}
	root.PersistentFlags().StringVarP(&opts.host, "host", "H", "localhost", "hostname of the server")
	root.PersistentFlags().StringVarP(&opts.port, "port", "p", "8080", "port of the server")
	root.PersistentFlags().BoolVarP(&opts.secure, "secure", "s", false, "use wss instead of ws")
	root.PersistentFlags().BoolVarP(&opts.showRev, "rev", "r", false, "show revision numbers received")

	root.AddCommand(insertCmd(opts), deleteCmd(opts), readCmd(opts), waitCmd(opts))

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func (o *options) url() string {
	scheme := "ws"
	if o.secure {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s:%s/ws", scheme, o.host, o.port)
}

func insertCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:     "insert <position> <text>",
		Aliases: []string{"i"},
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("position must be a number: %w", err)
			}
			return runAction(cmd.Context(), o, pos, protocol.Insert{Text: args[1]})
		},
	}
}

func deleteCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <position> <length>",
		Aliases: []string{"d"},
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pos, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("position must be a number: %w", err)
			}
			length, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("length must be a number: %w", err)
			}
			return runAction(cmd.Context(), o, pos, protocol.Delete{Length: length})
		},
	}
}

func readCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:     "read",
		Aliases: []string{"r"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, _, err := websocket.Dial(cmd.Context(), o.url(), nil)
			if err != nil {
				return err
			}
			defer conn.Close(websocket.StatusNormalClosure, "")

			connect, err := readConnect(cmd.Context(), conn)
			if err != nil {
				return err
			}
			if o.showRev {
				fmt.Printf("Rev %d\n", connect.Rev)
			}
			fmt.Println(connect.Buffer)
			return conn.Close(websocket.StatusNormalClosure, "")
		},
	}
}

// waitCmd streams every edit the server broadcasts, forever. The original
// client gave up on the first disconnect; this one retries with backoff so
// a long-lived "tail -f"-style session survives a server restart.
func waitCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:     "wait",
		Aliases: []string{"w"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			runBackoff := backoff.ExponentialBackOff{
				InitialInterval:     backoff.DefaultInitialInterval,
				RandomizationFactor: backoff.DefaultRandomizationFactor,
				Multiplier:          backoff.DefaultMultiplier,
				MaxInterval:         30 * time.Second,
			}
			runBackoff.Reset()

			for {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				err := streamEdits(ctx, o)
				if ctx.Err() != nil {
					return ctx.Err()
				}
				fmt.Fprintf(os.Stderr, "connection lost: %v; reconnecting\n", err)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(runBackoff.NextBackOff()):
				}
			}
		},
	}
}

func streamEdits(ctx context.Context, o *options) error {
	conn, _, err := websocket.Dial(ctx, o.url(), nil)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	connect, err := readConnect(ctx, conn)
	if err != nil {
		return err
	}
	if o.showRev {
		fmt.Printf("Rev %d\n", connect.Rev)
	}
	fmt.Printf("Text: %d bytes.\n%s\n", len(connect.Buffer), connect.Buffer)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var edit protocol.Edit
		if err := json.Unmarshal(data, &edit); err != nil {
			// Not an edit broadcast (e.g. this connection's own ack); skip.
			continue
		}
		printEdit(o, edit)
	}
}

func printEdit(o *options, edit protocol.Edit) {
	if o.showRev {
		fmt.Printf("Rev %d: ", edit.Rev)
	}
	switch a := edit.Action.(type) {
	case protocol.Insert:
		fmt.Printf("insert(%d, %q)\n", edit.Pos, a.Text)
	case protocol.Delete:
		fmt.Printf("delete(%d, %d)\n", edit.Pos, a.Length)
	}
}

// runAction connects, waits for the initial [rev, buffer] frame to learn
// the current revision, submits a single edit at that revision, and waits
// for the server's acknowledgement before closing.
func runAction(parent context.Context, o *options, pos int, action protocol.EditAction) error {
	ctx, cancel := context.WithTimeout(parent, 10*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, o.url(), nil)
	if err != nil {
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	connect, err := readConnect(ctx, conn)
	if err != nil {
		return err
	}
	if o.showRev {
		fmt.Printf("Rev %d\n", connect.Rev)
	}

	edit := protocol.Edit{Pos: pos, Rev: connect.Rev, Action: action}
	data, err := json.Marshal(edit)
	if err != nil {
		return err
	}
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		return err
	}

	_, ackData, err := conn.Read(ctx)
	if err != nil {
		return err
	}
	var ack protocol.Ack
	if err := json.Unmarshal(ackData, &ack); err != nil {
		return fmt.Errorf("invalid ack: %w", err)
	}
	if !ack.Success {
		return fmt.Errorf("failed action. Reason: %s", ack.Reason)
	}
	return conn.Close(websocket.StatusNormalClosure, "")
}

func readConnect(ctx context.Context, conn *websocket.Conn) (protocol.Connect, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return protocol.Connect{}, err
	}
	var connect protocol.Connect
	if err := json.Unmarshal(data, &connect); err != nil {
		return protocol.Connect{}, fmt.Errorf("invalid initial frame: %w", err)
	}
	return connect, nil
}
