package cart

import (
	"sync"

	"github.com/vladislavdragonenkov/cart/internal/domain"
)

// Change описывает одну мутацию корзины и snapshot после неё.
type Change struct {
	Op       domain.CartOp
	Snapshot domain.Snapshot
}

// Observer получает изменения корзины.
// Вызывается синхронно после мутации и не должен синхронно мутировать ту же корзину.
type Observer func(Change)

type subscription struct {
	id uint64
	fn Observer
}

// Store хранит упорядоченную корзину и рассылает snapshot наблюдателям.
// Опубликованный snapshot никогда не изменяется: каждая мутация строит новый слайс.
type Store struct {
	mu       sync.Mutex
	snapshot domain.Snapshot
	subs     []subscription
	nextSub  uint64

	// notifyMu сохраняет порядок доставки изменений в порядке мутаций.
	notifyMu sync.Mutex
}

// NewStore возвращает пустую корзину.
func NewStore() *Store {
	return &Store{
		snapshot: domain.Snapshot{Lines: []domain.CartLine{}},
	}
}

// Add добавляет позицию. Если позиция с таким ID уже есть, её количество
// увеличивается на line.Quantity, а позиция остаётся на своём месте.
// Количество не валидируется. Возвращает опубликованный snapshot.
func (s *Store) Add(line domain.CartLine) domain.Snapshot {
	return s.mutate(domain.CartOpAdd, func(lines []domain.CartLine) []domain.CartLine {
		for i := range lines {
			if lines[i].ID != line.ID {
				continue
			}
			next := make([]domain.CartLine, len(lines))
			copy(next, lines)
			next[i].Quantity += line.Quantity
			return next
		}

		next := make([]domain.CartLine, len(lines), len(lines)+1)
		copy(next, lines)
		return append(next, line)
	})
}

// UpdateQuantity выставляет количество max(0, quantity) позиции id и убирает
// позиции с нулевым количеством. Отсутствующий id игнорируется.
func (s *Store) UpdateQuantity(id int64, quantity int) domain.Snapshot {
	return s.mutate(domain.CartOpUpdateQuantity, func(lines []domain.CartLine) []domain.CartLine {
		next := make([]domain.CartLine, 0, len(lines))
		for _, line := range lines {
			if line.ID == id {
				line.Quantity = max(0, quantity)
			}
			if line.Quantity > 0 {
				next = append(next, line)
			}
		}
		return next
	})
}

// Remove удаляет позицию id, если она есть.
func (s *Store) Remove(id int64) domain.Snapshot {
	return s.mutate(domain.CartOpRemove, func(lines []domain.CartLine) []domain.CartLine {
		next := make([]domain.CartLine, 0, len(lines))
		for _, line := range lines {
			if line.ID != id {
				next = append(next, line)
			}
		}
		return next
	})
}

// Clear очищает корзину.
func (s *Store) Clear() domain.Snapshot {
	return s.mutate(domain.CartOpClear, func([]domain.CartLine) []domain.CartLine {
		return []domain.CartLine{}
	})
}

// Close очищает корзину, уведомляет наблюдателей с CartOpClose и отписывает их.
// Используется владельцем при unmount.
func (s *Store) Close() {
	s.mutate(domain.CartOpClose, func([]domain.CartLine) []domain.CartLine {
		return []domain.CartLine{}
	})

	s.mu.Lock()
	s.subs = nil
	s.mu.Unlock()
}

// Snapshot возвращает копию текущего состояния корзины.
func (s *Store) Snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot.Clone()
}

// Subscribe регистрирует наблюдателя и возвращает функцию отписки.
// Отписка идемпотентна.
func (s *Store) Subscribe(fn Observer) func() {
	if fn == nil {
		return func() {}
	}

	s.mu.Lock()
	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscription{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			for i, sub := range s.subs {
				if sub.id == id {
					s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// mutate публикует новый snapshot и возвращает его копию.
func (s *Store) mutate(op domain.CartOp, apply func([]domain.CartLine) []domain.CartLine) domain.Snapshot {
	s.mu.Lock()
	s.snapshot = domain.Snapshot{
		Version: s.snapshot.Version + 1,
		Lines:   apply(s.snapshot.Lines),
	}
	snapshot := s.snapshot
	subs := make([]subscription, len(s.subs))
	copy(subs, s.subs)

	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	for _, sub := range subs {
		sub.fn(Change{Op: op, Snapshot: snapshot.Clone()})
	}
	return snapshot.Clone()
}
