package cart

import (
	"context"

	"github.com/vladislavdragonenkov/cart/internal/domain"
)

type scopeKey struct{}

// NewContext устанавливает корзину для всех потребителей, получающих ctx.
func NewContext(ctx context.Context, store *Store) context.Context {
	return context.WithValue(ctx, scopeKey{}, store)
}

// FromContext возвращает корзину владельца или domain.ErrNoCartScope,
// если корзина не была установлена.
func FromContext(ctx context.Context) (*Store, error) {
	if ctx == nil {
		return nil, domain.ErrNoCartScope
	}
	store, ok := ctx.Value(scopeKey{}).(*Store)
	if !ok || store == nil {
		return nil, domain.ErrNoCartScope
	}
	return store, nil
}

// MustFromContext как FromContext, но паникует без владельца.
func MustFromContext(ctx context.Context) *Store {
	store, err := FromContext(ctx)
	if err != nil {
		panic(err)
	}
	return store
}
