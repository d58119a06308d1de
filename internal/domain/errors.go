package domain

import "errors"

var (
	// Ошибка отсутствующего идентификатора товара.
	ErrProductIDRequired = errors.New("product_id is required")
	// Ошибка отсутствующего названия товара.
	ErrProductNameRequired = errors.New("product name is required")
	// Ошибка отрицательной цены.
	ErrPriceNegative = errors.New("price_minor must be non-negative")
	// Ошибка отрицательного лимита покупки.
	ErrPurchaseLimitInvalid = errors.New("purchase_limit must be non-negative")
	// Ошибка отсутствующего товара у карты.
	ErrCardProductRequired = errors.New("card product_id is required")
	// Ошибка пустого секрета карты.
	ErrCardKeyRequired = errors.New("card_key is required")
	// Ошибка отсутствующего идентификатора заказа.
	ErrOrderIDRequired = errors.New("order_id is required")
	// Ошибка некорректного количества (< 1).
	ErrQuantityInvalid = errors.New("quantity must be at least 1")
	// Ошибка отрицательной суммы заказа.
	ErrAmountNegative = errors.New("amount_minor must be non-negative")
	// Ошибка отрицательного списания баллов.
	ErrPointsNegative = errors.New("points must be non-negative")

	// ErrProductNotFound возвращается, если товар не найден или скрыт.
	ErrProductNotFound = errors.New("product not found")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrCardNotFound возвращается, если карта не найдена.
	ErrCardNotFound = errors.New("card not found")
	// ErrUserNotFound возвращается, если покупатель неизвестен.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserBlocked — покупатель заблокирован администратором.
	ErrUserBlocked = errors.New("user is blocked")

	// ErrInsufficientStock — свободных карт меньше, чем запрошено, на момент
	// захвата. Восстановимо для вызывающего: повторить позже или уменьшить
	// количество. Частичного захвата после этой ошибки не остаётся.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInsufficientPoints — на балансе меньше баллов, чем запрошено к списанию.
	ErrInsufficientPoints = errors.New("insufficient points")
	// ErrPurchaseLimitExceeded — количество превышает лимит товара на заказ.
	ErrPurchaseLimitExceeded = errors.New("purchase limit exceeded")
	// ErrInvalidTransition — запрошенный переход статуса не входит в граф;
	// состояние заказа не меняется.
	ErrInvalidTransition = errors.New("invalid order status transition")
	// ErrCardClaimConflict — конкурирующий захват выиграл условное обновление.
	// Для вызывающего неотличим от нехватки стока после отката.
	ErrCardClaimConflict = errors.New("card claim lost the race")
)

// IsInsufficientStock проверяет, является ли ошибка нехваткой стока
// (включая проигранную гонку захвата после отката).
func IsInsufficientStock(err error) bool {
	return errors.Is(err, ErrInsufficientStock) || errors.Is(err, ErrCardClaimConflict)
}

// IsInvalidTransition проверяет ошибку недопустимого перехода статуса.
func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}
