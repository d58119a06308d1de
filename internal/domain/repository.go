package domain

import "time"

// ProductRepository описывает требования к хранилищу товаров.
type ProductRepository interface {
	// Create сохраняет новый товар. Возвращает ошибку, если ID уже занят.
	Create(product Product) error
	// Get возвращает товар по идентификатору или ErrProductNotFound.
	Get(id string) (Product, error)
	// List возвращает все товары (для бэкфилла и админки).
	List() ([]Product, error)
	// UpdateAggregates перезаписывает производные счётчики одного товара.
	// Идемпотентно; last-write-wins.
	UpdateAggregates(id string, agg Aggregates) error
	// UpdateAggregatesBulk перезаписывает счётчики партии товаров.
	UpdateAggregatesBulk(aggs map[string]Aggregates) error
}

// CardRepository описывает хранилище карт. Все мутации — условные
// однострочные записи: никакая операция не полагается на многотабличную
// транзакцию, корректность обеспечивается предикатом в самом обновлении
// и проверкой числа затронутых строк.
type CardRepository interface {
	// Add добавляет карты в пул товара (загрузка стока).
	Add(cards []Card) error
	// Get возвращает карту по идентификатору.
	Get(id int64) (Card, error)
	// ListClaimable возвращает до limit карт-кандидатов: неиспользованных и
	// либо свободных, либо с резервом старше expiredBefore.
	ListClaimable(productID string, limit int, expiredBefore time.Time) ([]Card, error)
	// Claim пытается захватить перечисленные карты под заказ. Обновляется
	// только строка, всё ещё удовлетворяющая предикату «свободна или резерв
	// истёк»; возвращаются ID реально захваченных карт. Захваченных может
	// оказаться меньше запрошенных — проигрыш гонки разрешает вызывающий.
	Claim(ids []int64, orderID string, now time.Time, expiredBefore time.Time) ([]int64, error)
	// Release снимает резерв со всех карт заказа. Использованные карты не
	// трогаются: их мог успеть финализировать конкурирующий deliver.
	Release(orderID string) (int, error)
	// MarkUsed помечает зарезервированные картой заказа строки использованными
	// и снимает резерв; возвращает финализированные карты.
	MarkUsed(orderID string, now time.Time) ([]Card, error)
	// ListByOrder возвращает карты, чей резерв указывает на заказ.
	ListByOrder(orderID string) ([]Card, error)
	// HasUnused сообщает, есть ли у товара хотя бы одна неиспользованная карта.
	HasUnused(productID string) (bool, error)
	// SharedKey возвращает секрет shared-товара: ключ самой старой
	// неиспользованной карты, не расходуя её.
	SharedKey(productID string) (string, error)
	// CountsByProduct возвращает сырые количества карт для пересчёта
	// агрегатов, сгруппированные по товару.
	CountsByProduct(productIDs []string, expiredBefore time.Time) (map[string]CardCounts, error)
}

// OrderRepository описывает хранилище заказов. Смена статуса — условное
// обновление с проверкой затронутых строк (CAS по статусу).
type OrderRepository interface {
	// Create сохраняет новый заказ в статусе pending.
	Create(order Order) error
	// Get возвращает заказ или ErrOrderNotFound.
	Get(orderID string) (Order, error)
	// ListByUser возвращает заказы покупателя, свежие первыми.
	ListByUser(userID string, limit int) ([]Order, error)
	// MarkPaid переводит pending → paid; false, если заказ не был pending.
	MarkPaid(orderID, tradeNo string, paidAt time.Time) (bool, error)
	// MarkDelivered переводит paid → delivered и фиксирует выданный контент;
	// false, если заказ не был paid.
	MarkDelivered(orderID, cardKey string, cardIDs []int64, pointsAwarded int, deliveredAt time.Time) (bool, error)
	// MarkStatus — общий CAS: переводит заказ в to, только если текущий
	// статус входит в from; false, если ни один из from не совпал.
	MarkStatus(orderID string, from []OrderStatus, to OrderStatus) (bool, error)
	// ExpirePending одним условным обновлением отменяет pending-заказы
	// старше before (с учётом фильтра) и возвращает их идентификаторы.
	ExpirePending(before time.Time, filter SweepFilter) ([]string, error)
	// SoldByProduct возвращает сумму quantity заказов в статусах
	// paid/delivered, сгруппированную по товару.
	SoldByProduct(productIDs []string) (map[string]int, error)
	// ProductsOf возвращает товары перечисленных заказов (без дублей).
	ProductsOf(orderIDs []string) ([]string, error)
}

// UserRepository хранит покупателей и их баллы.
type UserRepository interface {
	// Upsert создаёт или обновляет покупателя при входе.
	Upsert(user User) error
	// Get возвращает покупателя или ErrUserNotFound.
	Get(userID string) (User, error)
	// DeductPoints списывает баллы условной записью WHERE points >= n;
	// false означает нехватку баланса на момент записи.
	DeductPoints(userID string, points int) (bool, error)
	// AddPoints безусловно начисляет баллы (компенсация, награда за покупку).
	AddPoints(userID string, points int) error
}

// SettingsRepository — строковое K/V хранилище конфигурации магазина.
type SettingsRepository interface {
	// Get возвращает значение ключа либо пустую строку.
	Get(key string) (string, error)
	// Set создаёт или перезаписывает значение ключа.
	Set(key, value string) error
	// All возвращает все настройки.
	All() (map[string]string, error)
}

// ReviewRepository хранит отзывы; движку нужны только сводки рейтинга.
type ReviewRepository interface {
	// Add сохраняет отзыв.
	Add(review Review) error
	// RatingsByProduct возвращает средний рейтинг и число отзывов по товарам.
	RatingsByProduct(productIDs []string) (map[string]RatingAggregate, error)
}
