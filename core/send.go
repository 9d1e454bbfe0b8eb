package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"example.com/sharecore/pkg/config"
	"example.com/sharecore/pkg/ipc"
)

func newSendCmd(flags *rootFlags) *cobra.Command {
	var (
		socket  string
		wait    time.Duration
		replies int
	)

	cmd := &cobra.Command{
		Use:   "send <json>",
		Short: "Send one message to a running core and print its replies",
		Example: `  sharecore send --socket /tmp/sharecore.sock '{"type":"get_available_content"}'
  sharecore send '{"type":"ping"}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if socket != "" {
				cfg.SocketPath = socket
			}
			if cfg.SocketPath == "" {
				return fmt.Errorf("no socket path: pass --socket or set %s", config.SocketPathEnv)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), wait)
			defer cancel()

			client, err := ipc.Dial(ctx, cfg.SocketPath)
			if err != nil {
				return err
			}
			defer client.Close()
			context.AfterFunc(ctx, func() { client.Close() })

			if _, err := ipc.Decode([]byte(args[0])); err != nil {
				return err
			}
			if err := client.SendRaw([]byte(args[0])); err != nil {
				return err
			}

			for i := 0; replies == 0 || i < replies; i++ {
				_, raw, err := client.Receive()
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
				fmt.Fprintln(os.Stdout, string(raw))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&socket, "socket", "", "socket path (default: config or ETCH_SOCKET_PATH)")
	cmd.Flags().DurationVar(&wait, "wait", 2*time.Second, "how long to wait for replies")
	cmd.Flags().IntVar(&replies, "replies", 1, "replies to print before exiting (0 prints until --wait elapses)")
	return cmd
}
