package grpcsvc

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/vladislavdragonenkov/cart/internal/session"
)

// SessionHeader: metadata с идентификатором сессии корзины.
const SessionHeader = "cart-session"

type sessionIDKey struct{}

// ScopeUnaryInterceptor устанавливает корзину сессии из заголовка cart-session
// в context обработчика. Без заголовка или для несмонтированной сессии
// context остаётся без корзины, и обработчик вернёт FailedPrecondition.
func ScopeUnaryInterceptor(registry *session.Registry) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		return handler(establishScope(ctx, registry), req)
	}
}

// ScopeStreamInterceptor делает то же для server stream.
func ScopeStreamInterceptor(registry *session.Registry) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		return handler(srv, &scopedStream{ServerStream: ss, ctx: establishScope(ss.Context(), registry)})
	}
}

type scopedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *scopedStream) Context() context.Context {
	return s.ctx
}

func establishScope(ctx context.Context, registry *session.Registry) context.Context {
	id := readSessionID(ctx)
	if id == "" || registry == nil {
		return ctx
	}
	ctx = context.WithValue(ctx, sessionIDKey{}, id)

	scoped, err := registry.Establish(ctx, id)
	if err != nil {
		return ctx
	}
	return scoped
}

func readSessionID(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(SessionHeader)
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

func sessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionIDKey{}).(string)
	return id
}
