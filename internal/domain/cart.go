package domain

// CartOp задаёт тип операции над корзиной для наблюдателей, метрик и событий.
type CartOp string

const (
	CartOpAdd            CartOp = "add"
	CartOpUpdateQuantity CartOp = "update_quantity"
	CartOpRemove         CartOp = "remove"
	CartOpClear          CartOp = "clear"
	// CartOpClose: корзина уничтожена вместе с владельцем (unmount).
	CartOpClose CartOp = "close"
)

// CartLine: одна позиция корзины; в корзине не больше одной позиции на ID.
type CartLine struct {
	// ID: идентификатор товара.
	ID int64 `json:"id"`
	// Name: отображаемое название.
	Name string `json:"name"`
	// Price: цена за единицу, валюта не задаётся.
	Price float64 `json:"price"`
	// Quantity: количество единиц, > 0 пока позиция в корзине.
	Quantity int `json:"quantity"`
}

// Snapshot: неизменяемое состояние корзины.
// Каждая мутация публикует новый snapshot со строго большей версией.
type Snapshot struct {
	Version uint64     `json:"version"`
	Lines   []CartLine `json:"lines"`
}

// Clone возвращает копию snapshot, не разделяющую слайс позиций.
func (s Snapshot) Clone() Snapshot {
	lines := make([]CartLine, len(s.Lines))
	copy(lines, s.Lines)
	return Snapshot{Version: s.Version, Lines: lines}
}

// Len возвращает количество позиций.
func (s Snapshot) Len() int {
	return len(s.Lines)
}

// IsEmpty сообщает, пуста ли корзина.
func (s Snapshot) IsEmpty() bool {
	return len(s.Lines) == 0
}

// TotalQuantity суммирует количество единиц по всем позициям.
func (s Snapshot) TotalQuantity() int {
	total := 0
	for _, line := range s.Lines {
		total += line.Quantity
	}
	return total
}

// Line ищет позицию по ID товара.
func (s Snapshot) Line(id int64) (CartLine, bool) {
	for _, line := range s.Lines {
		if line.ID == id {
			return line, true
		}
	}
	return CartLine{}, false
}

// IDs возвращает ID позиций в порядке корзины.
func (s Snapshot) IDs() []int64 {
	ids := make([]int64, 0, len(s.Lines))
	for _, line := range s.Lines {
		ids = append(ids, line.ID)
	}
	return ids
}

// ValidateInvariants проверяет уникальность ID и положительное количество.
func (s Snapshot) ValidateInvariants() []error {
	var errs []error

	seen := make(map[int64]struct{}, len(s.Lines))
	for _, line := range s.Lines {
		if _, ok := seen[line.ID]; ok {
			errs = append(errs, ErrDuplicateLine)
		}
		seen[line.ID] = struct{}{}
		if line.Quantity <= 0 {
			errs = append(errs, ErrLineQtyInvalid)
		}
	}

	return errs
}
