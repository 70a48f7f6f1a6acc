package grpc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/fjod/go_cart/lineitems/internal/domain"
	"github.com/fjod/go_cart/lineitems/internal/store"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type CartProvider interface {
	Get(ctx context.Context, userID string) *store.Store
}

type CartServer struct {
	carts CartProvider
}

func NewCartServer(carts CartProvider) *CartServer {
	return &CartServer{carts: carts}
}

func convertCart(userID string, items domain.Collection) *CartResponse {
	return &CartResponse{
		UserID:        userID,
		Items:         items,
		TotalQuantity: items.TotalQuantity(),
		TotalValue:    items.TotalValue().String(),
	}
}

// UserIDMetadataKey is the metadata gateways use to forward the caller.
const UserIDMetadataKey = "user-id"

// validUserID prefers the request field and falls back to the user-id
// metadata forwarded by a gateway.
func validUserID(ctx context.Context, userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get(UserIDMetadataKey); len(vals) > 0 {
				userID = strings.TrimSpace(vals[0])
			}
		}
	}
	if userID == "" {
		return "", status.Error(codes.InvalidArgument, "user_id is required")
	}
	return userID, nil
}

func (s *CartServer) GetCart(ctx context.Context, req *CartRequest) (*CartResponse, error) {
	userID, err := validUserID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	return convertCart(userID, s.carts.Get(ctx, userID).Items()), nil
}

func (s *CartServer) Upsert(ctx context.Context, req *UpsertRequest) (*CartResponse, error) {
	userID, err := validUserID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if len(req.Item) == 0 {
		return nil, status.Error(codes.InvalidArgument, "item is required")
	}

	var entry domain.Entry
	if err := json.Unmarshal(req.Item, &entry); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "invalid item: %v", err)
	}

	items, err := s.carts.Get(ctx, userID).Upsert(ctx, entry)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidLineItem) {
			return nil, status.Error(codes.InvalidArgument, err.Error())
		}
		return nil, status.Errorf(codes.Internal, "failed to add item to cart: %v", err)
	}
	return convertCart(userID, items), nil
}

func (s *CartServer) Decrement(ctx context.Context, req *ItemRequest) (*CartResponse, error) {
	userID, err := validUserID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if req.ItemID.IsZero() {
		return nil, status.Error(codes.InvalidArgument, "item_id is required")
	}
	return convertCart(userID, s.carts.Get(ctx, userID).Decrement(ctx, req.ItemID)), nil
}

func (s *CartServer) Remove(ctx context.Context, req *ItemRequest) (*CartResponse, error) {
	userID, err := validUserID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if req.ItemID.IsZero() {
		return nil, status.Error(codes.InvalidArgument, "item_id is required")
	}
	return convertCart(userID, s.carts.Get(ctx, userID).Remove(ctx, req.ItemID)), nil
}

func (s *CartServer) Clear(ctx context.Context, req *CartRequest) (*CartResponse, error) {
	userID, err := validUserID(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	return convertCart(userID, s.carts.Get(ctx, userID).Clear(ctx)), nil
}

// LoggingInterceptor logs one line per unary call.
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		level := slog.LevelInfo
		if code == codes.Internal || code == codes.Unknown {
			level = slog.LevelError
		}
		logger.Log(ctx, level, "grpc call",
			"method", info.FullMethod,
			"code", code.String(),
			"duration_ms", time.Since(start).Milliseconds())
		return resp, err
	}
}

var _ CartServiceServer = (*CartServer)(nil)
