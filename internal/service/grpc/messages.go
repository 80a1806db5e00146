package grpcsvc

import "github.com/vladislavdragonenkov/cart/internal/domain"

// OpenSessionRequest монтирует новую корзину.
type OpenSessionRequest struct{}

// OpenSessionResponse возвращает идентификатор сессии для заголовка cart-session.
type OpenSessionResponse struct {
	SessionID string       `json:"session_id"`
	Cart      CartResponse `json:"cart"`
}

// CloseSessionRequest уничтожает корзину сессии из заголовка.
type CloseSessionRequest struct{}

// CloseSessionResponse сообщает, была ли сессия смонтирована.
type CloseSessionResponse struct {
	SessionID string `json:"session_id"`
	Closed    bool   `json:"closed"`
}

// AddItemRequest добавляет позицию (quantity не валидируется).
type AddItemRequest struct {
	Line domain.CartLine `json:"line"`
}

// UpdateQuantityRequest выставляет количество позиции.
type UpdateQuantityRequest struct {
	ID       int64 `json:"id"`
	Quantity int   `json:"quantity"`
}

// RemoveItemRequest удаляет позицию.
type RemoveItemRequest struct {
	ID int64 `json:"id"`
}

// ClearCartRequest очищает корзину сессии.
type ClearCartRequest struct{}

// GetCartRequest запрашивает текущий snapshot.
type GetCartRequest struct{}

// WatchRequest открывает поток изменений корзины.
type WatchRequest struct{}

// CartResponse: snapshot корзины сессии.
type CartResponse struct {
	SessionID     string            `json:"session_id"`
	Op            domain.CartOp     `json:"op,omitempty"`
	Version       uint64            `json:"version"`
	Lines         []domain.CartLine `json:"lines"`
	TotalQuantity int               `json:"total_quantity"`
}

func toCartResponse(sessionID string, op domain.CartOp, snapshot domain.Snapshot) *CartResponse {
	lines := snapshot.Lines
	if lines == nil {
		lines = []domain.CartLine{}
	}
	return &CartResponse{
		SessionID:     sessionID,
		Op:            op,
		Version:       snapshot.Version,
		Lines:         lines,
		TotalQuantity: snapshot.TotalQuantity(),
	}
}
