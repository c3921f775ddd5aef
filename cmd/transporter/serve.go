package main

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"journaltransporter/internal/app"
	"journaltransporter/pkg/database"
)

func (c *cli) serveCmd() *cobra.Command {
	var which app.Servers

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the gRPC service and the event feed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openApp()
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := a.Serve(ctx, which); err != nil {
				return c.fail(err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&which.HTTP, "http", true, "serve the HTTP API on http.addr")
	cmd.Flags().BoolVar(&which.GRPC, "grpc", true, "serve gRPC on grpc.addr")
	cmd.Flags().BoolVar(&which.Events, "events", true, "serve the TCP event feed on events.tcp_addr when set")
	return cmd
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the local database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := database.Open(c.cfg.DB)
			if err != nil {
				return c.fail(err)
			}
			defer db.Close()

			if err := database.Migrate(db, c.log); err != nil {
				return c.fail(err)
			}
			fmt.Fprintf(c.stdout, "database ready at %s\n", c.cfg.DB.Path)
			return nil
		},
	}
}

func (c *cli) eventsCmd() *cobra.Command {
	var (
		remote remoteFlags
		tcp    string
	)

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print import events from a running transporter until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			emit := func(msg []byte) error {
				_, err := fmt.Fprintln(c.stdout, string(msg))
				return err
			}
			if tcp != "" {
				return tailTCP(ctx, tcp, emit)
			}
			if err := remote.client().Events(ctx, emit); err != nil {
				return c.fail(err)
			}
			return nil
		},
	}

	remote.register(cmd)
	cmd.Flags().StringVar(&tcp, "tcp", "", "read the raw TCP feed at this address instead of the WebSocket")
	return cmd
}

func tailTCP(ctx context.Context, addr string, fn func([]byte) error) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	sc := bufio.NewScanner(conn)
	for sc.Scan() {
		if err := fn(sc.Bytes()); err != nil {
			return err
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	return sc.Err()
}
