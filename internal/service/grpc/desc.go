package grpcsvc

import (
	"context"

	"google.golang.org/grpc"
)

const (
	serviceName = "cart.v1.CartService"

	methodOpenSession    = "/cart.v1.CartService/OpenSession"
	methodCloseSession   = "/cart.v1.CartService/CloseSession"
	methodAddItem        = "/cart.v1.CartService/AddItem"
	methodUpdateQuantity = "/cart.v1.CartService/UpdateQuantity"
	methodRemoveItem     = "/cart.v1.CartService/RemoveItem"
	methodClearCart      = "/cart.v1.CartService/ClearCart"
	methodGetCart        = "/cart.v1.CartService/GetCart"
	methodWatch          = "/cart.v1.CartService/Watch"
)

// CartServiceServer: серверная часть cart.v1.CartService.
type CartServiceServer interface {
	OpenSession(context.Context, *OpenSessionRequest) (*OpenSessionResponse, error)
	CloseSession(context.Context, *CloseSessionRequest) (*CloseSessionResponse, error)
	AddItem(context.Context, *AddItemRequest) (*CartResponse, error)
	UpdateQuantity(context.Context, *UpdateQuantityRequest) (*CartResponse, error)
	RemoveItem(context.Context, *RemoveItemRequest) (*CartResponse, error)
	ClearCart(context.Context, *ClearCartRequest) (*CartResponse, error)
	GetCart(context.Context, *GetCartRequest) (*CartResponse, error)
	Watch(*WatchRequest, WatchServer) error
}

// WatchServer отправляет snapshot корзины в server stream.
type WatchServer interface {
	Send(*CartResponse) error
	grpc.ServerStream
}

type watchServer struct {
	grpc.ServerStream
}

func (w *watchServer) Send(resp *CartResponse) error {
	return w.ServerStream.SendMsg(resp)
}

func unaryHandler[Req any, Resp any](
	fullMethod string,
	call func(CartServiceServer, context.Context, *Req) (*Resp, error),
) grpc.MethodHandler {
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

func watchHandler(srv any, stream grpc.ServerStream) error {
	in := new(WatchRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(CartServiceServer).Watch(in, &watchServer{ServerStream: stream})
}

// CartServiceDesc описывает cart.v1.CartService для grpc.Server.
var CartServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*CartServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "OpenSession", Handler: unaryHandler(methodOpenSession, CartServiceServer.OpenSession)},
		{MethodName: "CloseSession", Handler: unaryHandler(methodCloseSession, CartServiceServer.CloseSession)},
		{MethodName: "AddItem", Handler: unaryHandler(methodAddItem, CartServiceServer.AddItem)},
		{MethodName: "UpdateQuantity", Handler: unaryHandler(methodUpdateQuantity, CartServiceServer.UpdateQuantity)},
		{MethodName: "RemoveItem", Handler: unaryHandler(methodRemoveItem, CartServiceServer.RemoveItem)},
		{MethodName: "ClearCart", Handler: unaryHandler(methodClearCart, CartServiceServer.ClearCart)},
		{MethodName: "GetCart", Handler: unaryHandler(methodGetCart, CartServiceServer.GetCart)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Watch", Handler: watchHandler, ServerStreams: true},
	},
}

// RegisterCartServiceServer регистрирует srv в grpc-сервере.
func RegisterCartServiceServer(s grpc.ServiceRegistrar, srv CartServiceServer) {
	s.RegisterService(&CartServiceDesc, srv)
}
