package grpcserver

import (
	"context"
	"encoding/base64"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"journaltransporter/internal/account"
	"journaltransporter/internal/auth"
	"journaltransporter/internal/ingest"
	"journaltransporter/internal/testutil"
	"journaltransporter/pkg/models"
)

func newClient(t *testing.T) *Client {
	t.Helper()
	db := testutil.NewDB(t)
	ctx := context.Background()

	accounts := account.NewRepo(db)
	id, err := accounts.Upsert(ctx, models.Account{Email: "staff@example.com", FirstName: "S", LastName: "M"})
	require.NoError(t, err)
	hash, err := bcrypt.GenerateFromPassword([]byte("pw"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, accounts.SetStaffCredentials(ctx, id, string(hash)))

	authn := auth.NewAuthenticator(auth.TokenService{Secret: []byte("k"), Duration: time.Hour}, accounts, "")
	srv := New(NewServer(ingest.NewImporter(db, nil), nil), authn, nil)

	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewClient(conn)
}

func staffCtx(password string) context.Context {
	creds := base64.StdEncoding.EncodeToString([]byte("staff@example.com:" + password))
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Basic "+creds)
}

func TestImportAndGetJournal(t *testing.T) {
	c := newClient(t)
	ctx := staffCtx("pw")

	resp, err := c.ImportJournal(ctx, &ImportJournalRequest{Journal: &ingest.JournalPayload{
		Path:   "example",
		Title:  "Example Journal",
		Issues: []ingest.IssuePayload{{Articles: []ingest.ArticlePayload{{Title: "A"}}}},
	}})
	require.NoError(t, err)
	assert.True(t, resp.Result.Created)
	assert.Equal(t, "example", resp.Result.Journal.Code)
	assert.Equal(t, 1, resp.Result.Articles)

	resp, err = c.ImportJournal(ctx, &ImportJournalRequest{Journal: &ingest.JournalPayload{Path: "example", Title: "Renamed"}})
	require.NoError(t, err)
	assert.False(t, resp.Result.Created)

	got, err := c.GetJournal(ctx, &GetJournalRequest{Path: "example", Nested: true})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Journal.Name)
	require.NotNil(t, got.Export)
	assert.Len(t, got.Export.Issues, 1)

	_, err = c.GetJournal(ctx, &GetJournalRequest{Path: "missing"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestErrorCodes(t *testing.T) {
	c := newClient(t)

	_, err := c.ImportJournal(staffCtx("pw"), &ImportJournalRequest{Journal: &ingest.JournalPayload{Path: "no title"}})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = c.ImportJournal(staffCtx("pw"), &ImportJournalRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = c.ImportJournal(context.Background(), &ImportJournalRequest{Journal: &ingest.JournalPayload{Path: "p", Title: "t"}})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	_, err = c.ImportJournal(staffCtx("wrong"), &ImportJournalRequest{Journal: &ingest.JournalPayload{Path: "p", Title: "t"}})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}

func TestImportAccount(t *testing.T) {
	c := newClient(t)

	resp, err := c.ImportAccount(staffCtx("pw"), &ImportAccountRequest{Account: &ingest.AccountPayload{
		Email: "reader@example.com", FirstName: "R", LastName: "D",
	}})
	require.NoError(t, err)
	assert.True(t, resp.Created)
	assert.Equal(t, "reader@example.com", resp.Account.Email)
}
