package domain

import "time"

// User — покупатель с балансом баллов лояльности. Аутентификацию выполняет
// внешний коллаборатор; здесь хранится только стабильный идентификатор и баллы.
type User struct {
	UserID      string
	Username    string
	Points      int
	IsBlocked   bool
	CreatedAt   time.Time
	LastLoginAt time.Time
}

// MaxRedeemablePoints возвращает потолок списания баллов для суммы заказа:
// ceil от суммы в основных денежных единицах (1 балл = 1 единица валюты).
func MaxRedeemablePoints(amountMinor int64) int {
	if amountMinor <= 0 {
		return 0
	}
	return int((amountMinor + minorPerPoint - 1) / minorPerPoint)
}

// PointsDiscountMinor переводит списываемые баллы в скидку в минимальных
// единицах; скидка не превышает сумму заказа.
func PointsDiscountMinor(points int, amountMinor int64) int64 {
	discount := int64(points) * minorPerPoint
	if discount > amountMinor {
		return amountMinor
	}
	return discount
}

// minorPerPoint — стоимость одного балла в минимальных единицах.
const minorPerPoint = int64(100)
