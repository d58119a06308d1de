package domain

import "time"

// Card — единица стока: одноразовый секрет (ключ/код), принадлежащий
// ровно одному товару. Жизненный цикл: создана свободной → занята
// резервом pending-заказа → либо использована при доставке (терминально),
// либо возвращена в пул при отмене/истечении резерва.
type Card struct {
	ID        int64
	ProductID string
	CardKey   string
	// IsUsed — терминальный флаг: однажды использованная карта расходуется
	// навсегда и никогда не освобождается обратно.
	IsUsed bool
	// ReservedOrderID указывает на заказ, удерживающий карту; пустая строка —
	// карта свободна. Поле пишут только движок резервирования (захват),
	// машина статусов (финализация) и sweeper (освобождение).
	ReservedOrderID string
	ReservedAt      time.Time
	UsedAt          time.Time
	CreatedAt       time.Time
}

// CardCounts — сырые количества карт товара для пересчёта агрегатов.
type CardCounts struct {
	// Unused — все неиспользованные карты, включая занятые живым резервом.
	Unused int
	// Available — неиспользованные без резерва либо с истёкшим резервом.
	Available int
	// Locked — неиспользованные с живым (не истёкшим) резервом.
	Locked int
}

// ReservationActive сообщает, удерживается ли карта живым резервом
// на момент now при заданном TTL.
func (c *Card) ReservationActive(now time.Time, ttl time.Duration) bool {
	if c.IsUsed || c.ReservedOrderID == "" || c.ReservedAt.IsZero() {
		return false
	}
	return c.ReservedAt.After(now.Add(-ttl))
}

// Claimable сообщает, может ли карта быть захвачена новым заказом:
// не использована и не удерживается живым резервом.
func (c *Card) Claimable(now time.Time, ttl time.Duration) bool {
	return !c.IsUsed && !c.ReservationActive(now, ttl)
}

// Validate проверяет ключевые поля карты.
func (c *Card) Validate() []error {
	var errs []error

	if c.ProductID == "" {
		errs = append(errs, ErrCardProductRequired)
	}
	if c.CardKey == "" {
		errs = append(errs, ErrCardKeyRequired)
	}

	return errs
}
