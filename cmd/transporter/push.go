package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"journaltransporter/internal/client"
	"journaltransporter/internal/grpcserver"
	"journaltransporter/internal/ingest"
)

type remoteFlags struct {
	api      string
	user     string
	password string
}

func (r *remoteFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&r.api, "api", client.DefaultBaseURL, "API base URL")
	cmd.Flags().StringVarP(&r.user, "user", "u", "", "staff account email")
	cmd.Flags().StringVarP(&r.password, "password", "p", "", "staff account password")
}

func (r *remoteFlags) client() *client.Client {
	return client.New(r.api, r.user, r.password)
}

func (c *cli) pushCmd() *cobra.Command {
	var (
		remote   remoteFlags
		grpcAddr string
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "push <file>",
		Short: "Send a journal payload to a running transporter over HTTP or gRPC",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := ingest.DecodeFile(args[0])
			if err != nil {
				return c.fail(err)
			}
			if err := ingest.Validate(p); err != nil {
				return c.fail(err)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			if grpcAddr != "" {
				return c.pushGRPC(ctx, grpcAddr, remote, p)
			}

			j, created, err := remote.client().PushJournal(ctx, p)
			if err != nil {
				return c.fail(err)
			}
			fmt.Fprintf(c.stdout, "pushed journal %q (id %d, created=%t)\n", j.Code, j.ID, created)
			return nil
		},
	}

	remote.register(cmd)
	cmd.Flags().StringVar(&grpcAddr, "grpc", "", "push over gRPC to this address instead of HTTP")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Minute, "request timeout")
	return cmd
}

func (c *cli) pushGRPC(ctx context.Context, addr string, remote remoteFlags, p *ingest.JournalPayload) error {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return c.fail(fmt.Errorf("grpc dial %s: %w", addr, err))
	}
	defer conn.Close()

	creds := base64.StdEncoding.EncodeToString([]byte(remote.user + ":" + remote.password))
	ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Basic "+creds)

	resp, err := grpcserver.NewClient(conn).ImportJournal(ctx, &grpcserver.ImportJournalRequest{Journal: p})
	if err != nil {
		return c.fail(err)
	}
	fmt.Fprintf(c.stdout, "pushed journal %q (id %d, created=%t)\n", resp.Result.Journal.Code, resp.Result.Journal.ID, resp.Result.Created)
	return nil
}
