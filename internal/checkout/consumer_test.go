package checkout

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/fjod/go_cart/lineitems/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type recordingClearer struct {
	users []string
}

func (c *recordingClearer) Clear(_ context.Context, userID string) domain.Collection {
	c.users = append(c.users, userID)
	return domain.Collection{}
}

func TestUserIDFromEvent(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
		wantErr bool
	}{
		{name: "string id", payload: `{"checkout_id":"c1","user_id":"123"}`, want: "123"},
		{name: "numeric id", payload: `{"user_id":42}`, want: "42"},
		{name: "missing", payload: `{"checkout_id":"c1"}`, wantErr: true},
		{name: "null", payload: `{"user_id":null}`, wantErr: true},
		{name: "empty string", payload: `{"user_id":""}`, wantErr: true},
		{name: "fraction", payload: `{"user_id":1.5}`, wantErr: true},
		{name: "object", payload: `{"user_id":{}}`, wantErr: true},
		{name: "not json", payload: `nope`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := userIDFromEvent([]byte(tt.payload))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestConsumer_Handle(t *testing.T) {
	carts := &recordingClearer{}
	c := &Consumer{carts: carts, logger: discardLogger()}

	require.NoError(t, c.handle(context.Background(), []byte(`{"user_id":"123","total_amount":"1"}`)))
	assert.Error(t, c.handle(context.Background(), []byte(`{"total_amount":"1"}`)))
	assert.Equal(t, []string{"123"}, carts.users)
}

func TestConsumer_RunStopsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	c := NewConsumer(&recordingClearer{}, "checkout-outbox", "test-group", discardLogger(), "127.0.0.1:1")
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop")
	}
	require.NoError(t, c.Close())
}
