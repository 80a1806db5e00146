package grpcsvc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"github.com/vladislavdragonenkov/cart/internal/domain"
)

// Client: типизированный клиент cart.v1.CartService.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient оборачивает соединение.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// WithSession добавляет идентификатор сессии в исходящие metadata.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, SessionHeader, sessionID)
}

// OpenSession монтирует новую корзину и возвращает идентификатор сессии.
func (c *Client) OpenSession(ctx context.Context, opts ...grpc.CallOption) (*OpenSessionResponse, error) {
	out := new(OpenSessionResponse)
	if err := c.invoke(ctx, methodOpenSession, &OpenSessionRequest{}, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// CloseSession уничтожает корзину сессии из ctx.
func (c *Client) CloseSession(ctx context.Context, opts ...grpc.CallOption) (*CloseSessionResponse, error) {
	out := new(CloseSessionResponse)
	if err := c.invoke(ctx, methodCloseSession, &CloseSessionRequest{}, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// AddItem добавляет позицию в корзину сессии.
func (c *Client) AddItem(ctx context.Context, line domain.CartLine, opts ...grpc.CallOption) (*CartResponse, error) {
	return c.cart(ctx, methodAddItem, &AddItemRequest{Line: line}, opts)
}

// UpdateQuantity выставляет количество позиции id.
func (c *Client) UpdateQuantity(ctx context.Context, id int64, quantity int, opts ...grpc.CallOption) (*CartResponse, error) {
	return c.cart(ctx, methodUpdateQuantity, &UpdateQuantityRequest{ID: id, Quantity: quantity}, opts)
}

// RemoveItem удаляет позицию id.
func (c *Client) RemoveItem(ctx context.Context, id int64, opts ...grpc.CallOption) (*CartResponse, error) {
	return c.cart(ctx, methodRemoveItem, &RemoveItemRequest{ID: id}, opts)
}

// ClearCart очищает корзину сессии.
func (c *Client) ClearCart(ctx context.Context, opts ...grpc.CallOption) (*CartResponse, error) {
	return c.cart(ctx, methodClearCart, &ClearCartRequest{}, opts)
}

// GetCart возвращает текущий snapshot корзины.
func (c *Client) GetCart(ctx context.Context, opts ...grpc.CallOption) (*CartResponse, error) {
	return c.cart(ctx, methodGetCart, &GetCartRequest{}, opts)
}

// Watch открывает поток изменений корзины сессии из ctx.
func (c *Client) Watch(ctx context.Context, opts ...grpc.CallOption) (*WatchClient, error) {
	stream, err := c.conn.NewStream(ctx, &CartServiceDesc.Streams[0], methodWatch, callOptions(opts)...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(&WatchRequest{}); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return &WatchClient{stream: stream}, nil
}

// WatchClient читает snapshot из потока Watch.
type WatchClient struct {
	stream grpc.ClientStream
}

// Recv возвращает следующий snapshot; io.EOF означает, что сервер завершил поток.
func (w *WatchClient) Recv() (*CartResponse, error) {
	out := new(CartResponse)
	if err := w.stream.RecvMsg(out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) cart(ctx context.Context, method string, req any, opts []grpc.CallOption) (*CartResponse, error) {
	out := new(CartResponse)
	if err := c.invoke(ctx, method, req, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) invoke(ctx context.Context, method string, req, out any, opts []grpc.CallOption) error {
	return c.conn.Invoke(ctx, method, req, out, callOptions(opts)...)
}

func callOptions(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
}
