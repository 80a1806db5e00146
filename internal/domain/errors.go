package domain

import "errors"

var (
	// ErrNoCartScope возвращается, если корзину запрашивают вне области её владельца
	// (сессия не смонтирована или context не несёт корзину).
	ErrNoCartScope = errors.New("cart requested without an enclosing cart owner")
	// ErrSessionIDRequired: не передан идентификатор сессии корзины.
	ErrSessionIDRequired = errors.New("cart session id is required")
	// ErrDuplicateLine: в корзине две позиции с одинаковым ID товара.
	ErrDuplicateLine = errors.New("cart contains duplicate line id")
	// ErrLineQtyInvalid: позиция с количеством <= 0.
	ErrLineQtyInvalid = errors.New("cart line quantity must be greater than zero")
	// ErrForwarderFull: буфер публикации событий переполнен, событие отброшено.
	ErrForwarderFull = errors.New("cart event buffer is full")
	// ErrRegistryClosed: реестр сессий остановлен, новые корзины не создаются.
	ErrRegistryClosed = errors.New("cart session registry is closed")
)

// IsScopeError проверяет, что ошибка означает обращение к корзине без владельца.
func IsScopeError(err error) bool {
	return errors.Is(err, ErrNoCartScope)
}
