package grpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"testing"

	"github.com/fjod/go_cart/lineitems/internal/domain"
	"github.com/fjod/go_cart/lineitems/internal/persistence"
	"github.com/fjod/go_cart/lineitems/internal/session"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func startServer(t *testing.T) (*CartServiceClient, *persistence.Memory) {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	kv := persistence.NewMemory()

	srv := grpc.NewServer(grpc.UnaryInterceptor(LoggingInterceptor(slog.New(slog.DiscardHandler))))
	RegisterCartServiceServer(srv, NewCartServer(session.NewManager(kv)))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return NewCartServiceClient(conn), kv
}

func item(t *testing.T, e domain.Entry) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(e)
	require.NoError(t, err)
	return b
}

func TestCartServiceDesc_Registration(t *testing.T) {
	srv := grpc.NewServer()
	RegisterCartServiceServer(srv, NewCartServer(session.NewManager(persistence.NewMemory())))

	info, ok := srv.GetServiceInfo()["lineitems.v1.CartService"]
	require.True(t, ok)
	assert.Nil(t, info.Metadata, "no file descriptor is registered for the JSON service")

	var names []string
	for _, m := range info.Methods {
		names = append(names, m.Name)
	}
	assert.ElementsMatch(t, []string{"GetCart", "Upsert", "Decrement", "Remove", "Clear"}, names)
}

func TestCartServer_RoundTrip(t *testing.T) {
	ctx := context.Background()
	client, kv := startServer(t)

	rice := domain.Entry{ID: domain.IntID(1), Name: "Rice", UnitPrice: decimal.RequireFromString("5000")}
	beans := domain.Entry{ID: domain.StringID("sku-2"), Name: "Beans", UnitPrice: decimal.RequireFromString("0.25")}

	for _, e := range []domain.Entry{rice, rice, beans} {
		_, err := client.Upsert(ctx, &UpsertRequest{UserID: "u1", Item: item(t, e)})
		require.NoError(t, err)
	}

	resp, err := client.GetCart(ctx, &CartRequest{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "u1", resp.UserID)
	assert.Equal(t, 3, resp.TotalQuantity)
	assert.Equal(t, "10000.25", resp.TotalValue)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, domain.IntID(1), resp.Items[0].ID)
	assert.Equal(t, 2, resp.Items[0].Quantity)

	resp, err = client.Decrement(ctx, &ItemRequest{UserID: "u1", ItemID: domain.IntID(1)})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.TotalQuantity)

	resp, err = client.Remove(ctx, &ItemRequest{UserID: "u1", ItemID: domain.StringID("sku-2")})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.TotalQuantity)

	resp, err = client.Clear(ctx, &CartRequest{UserID: "u1"})
	require.NoError(t, err)
	assert.Empty(t, resp.Items)

	data, err := kv.Read(ctx, "cart:u1")
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}

func TestCartServer_InvalidArgument(t *testing.T) {
	ctx := context.Background()
	client, kv := startServer(t)

	tests := []struct {
		name string
		call func() error
	}{
		{"get without user", func() error {
			_, err := client.GetCart(ctx, &CartRequest{})
			return err
		}},
		{"upsert without item", func() error {
			_, err := client.Upsert(ctx, &UpsertRequest{UserID: "u1"})
			return err
		}},
		{"upsert without id", func() error {
			_, err := client.Upsert(ctx, &UpsertRequest{UserID: "u1", Item: json.RawMessage(`{"name":"x","unitPrice":1}`)})
			return err
		}},
		{"upsert negative price", func() error {
			_, err := client.Upsert(ctx, &UpsertRequest{UserID: "u1", Item: json.RawMessage(`{"id":3,"name":"x","unitPrice":-1}`)})
			return err
		}},
		{"upsert bad item", func() error {
			_, err := client.Upsert(ctx, &UpsertRequest{UserID: "u1", Item: json.RawMessage(`"rice"`)})
			return err
		}},
		{"decrement without id", func() error {
			_, err := client.Decrement(ctx, &ItemRequest{UserID: "u1"})
			return err
		}},
		{"remove blank user", func() error {
			_, err := client.Remove(ctx, &ItemRequest{UserID: "  ", ItemID: domain.IntID(1)})
			return err
		}},
		{"clear without user", func() error {
			_, err := client.Clear(ctx, &CartRequest{})
			return err
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.Equal(t, codes.InvalidArgument, status.Code(err))
		})
	}
	assert.Equal(t, 0, kv.Writes())
}

func TestCartServer_UserIDFromMetadata(t *testing.T) {
	client, _ := startServer(t)
	ctx := metadata.AppendToOutgoingContext(context.Background(), UserIDMetadataKey, "42", "request-id", "req-1")

	_, err := client.Upsert(ctx, &UpsertRequest{Item: json.RawMessage(`{"id":5,"name":"Salt","unitPrice":"1.5"}`)})
	require.NoError(t, err)

	resp, err := client.GetCart(context.Background(), &CartRequest{UserID: "42"})
	require.NoError(t, err)
	assert.Equal(t, "42", resp.UserID)
	assert.Equal(t, "1.5", resp.TotalValue)
}
