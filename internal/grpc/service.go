package grpc

import (
	"context"
	"encoding/json"

	"github.com/fjod/go_cart/lineitems/internal/domain"
	"google.golang.org/grpc"
)

const (
	serviceName = "lineitems.v1.CartService"

	methodGetCart   = "/" + serviceName + "/GetCart"
	methodUpsert    = "/" + serviceName + "/Upsert"
	methodDecrement = "/" + serviceName + "/Decrement"
	methodRemove    = "/" + serviceName + "/Remove"
	methodClear     = "/" + serviceName + "/Clear"
)

type CartRequest struct {
	UserID string `json:"user_id"`
}

// UpsertRequest carries the item undecoded so validation failures map to
// InvalidArgument rather than a codec error.
type UpsertRequest struct {
	UserID string          `json:"user_id"`
	Item   json.RawMessage `json:"item"`
}

type ItemRequest struct {
	UserID string        `json:"user_id"`
	ItemID domain.ItemID `json:"item_id"`
}

type CartResponse struct {
	UserID        string            `json:"user_id"`
	Items         domain.Collection `json:"items"`
	TotalQuantity int               `json:"total_quantity"`
	TotalValue    string            `json:"total_value"`
}

type CartServiceServer interface {
	GetCart(context.Context, *CartRequest) (*CartResponse, error)
	Upsert(context.Context, *UpsertRequest) (*CartResponse, error)
	Decrement(context.Context, *ItemRequest) (*CartResponse, error)
	Remove(context.Context, *ItemRequest) (*CartResponse, error)
	Clear(context.Context, *CartRequest) (*CartResponse, error)
}

var CartServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*CartServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetCart", Handler: unary(methodGetCart, CartServiceServer.GetCart)},
		{MethodName: "Upsert", Handler: unary(methodUpsert, CartServiceServer.Upsert)},
		{MethodName: "Decrement", Handler: unary(methodDecrement, CartServiceServer.Decrement)},
		{MethodName: "Remove", Handler: unary(methodRemove, CartServiceServer.Remove)},
		{MethodName: "Clear", Handler: unary(methodClear, CartServiceServer.Clear)},
	},
	Streams: []grpc.StreamDesc{},
}

func RegisterCartServiceServer(s grpc.ServiceRegistrar, srv CartServiceServer) {
	s.RegisterService(&CartServiceDesc, srv)
}

func unary[Req, Resp any](fullMethod string, call func(CartServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(CartServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(CartServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// CartServiceClient speaks the JSON codec regardless of the connection's
// default call options.
type CartServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewCartServiceClient(cc grpc.ClientConnInterface) *CartServiceClient {
	return &CartServiceClient{cc: cc}
}

func (c *CartServiceClient) GetCart(ctx context.Context, in *CartRequest, opts ...grpc.CallOption) (*CartResponse, error) {
	return invoke(ctx, c.cc, methodGetCart, in, opts)
}

func (c *CartServiceClient) Upsert(ctx context.Context, in *UpsertRequest, opts ...grpc.CallOption) (*CartResponse, error) {
	return invoke(ctx, c.cc, methodUpsert, in, opts)
}

func (c *CartServiceClient) Decrement(ctx context.Context, in *ItemRequest, opts ...grpc.CallOption) (*CartResponse, error) {
	return invoke(ctx, c.cc, methodDecrement, in, opts)
}

func (c *CartServiceClient) Remove(ctx context.Context, in *ItemRequest, opts ...grpc.CallOption) (*CartResponse, error) {
	return invoke(ctx, c.cc, methodRemove, in, opts)
}

func (c *CartServiceClient) Clear(ctx context.Context, in *CartRequest, opts ...grpc.CallOption) (*CartResponse, error) {
	return invoke(ctx, c.cc, methodClear, in, opts)
}

func invoke(ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*CartResponse, error) {
	out := new(CartResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
