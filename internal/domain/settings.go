package domain

import (
	"strconv"
	"time"
)

// Ключи настроек, которые читает движок. Значения — обычные строки;
// источник — K/V хранилище, управляемое админкой.
const (
	// SettingReservationTTLSeconds переопределяет TTL резерва (в секундах).
	SettingReservationTTLSeconds = "reservation_ttl_seconds"
	// SettingPointsReclaimOnRefund — возвращать ли начисленные баллы при
	// возврате средств ("1"/"true" — включено).
	SettingPointsReclaimOnRefund = "points_reclaim_on_refund"
	// SettingPointsAwardRate — баллов за каждую основную денежную единицу
	// оплаченной суммы.
	SettingPointsAwardRate = "points_award_rate"
	// SettingLowStockThreshold — порог уведомления администратора о низком стоке.
	SettingLowStockThreshold = "low_stock_threshold"
	// SettingAggregatesBackfilled — флаг одноразового бэкфилла агрегатов.
	SettingAggregatesBackfilled = "product_aggregates_backfilled"
)

// DefaultReservationTTL — TTL резерва по умолчанию.
const DefaultReservationTTL = 5 * time.Minute

// ReservationTTL читает TTL резерва из настроек с откатом на дефолт.
func ReservationTTL(settings SettingsRepository) time.Duration {
	if settings == nil {
		return DefaultReservationTTL
	}
	raw, err := settings.Get(SettingReservationTTLSeconds)
	if err != nil || raw == "" {
		return DefaultReservationTTL
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return DefaultReservationTTL
	}
	return time.Duration(seconds) * time.Second
}

// PointsReclaimOnRefund сообщает, включён ли возврат баллов при refund.
func PointsReclaimOnRefund(settings SettingsRepository) bool {
	if settings == nil {
		return false
	}
	raw, err := settings.Get(SettingPointsReclaimOnRefund)
	if err != nil {
		return false
	}
	return raw == "1" || raw == "true"
}

// PointsAwardRate читает норму начисления баллов; 0 отключает начисление.
func PointsAwardRate(settings SettingsRepository) int {
	if settings == nil {
		return 0
	}
	raw, err := settings.Get(SettingPointsAwardRate)
	if err != nil || raw == "" {
		return 0
	}
	rate, err := strconv.Atoi(raw)
	if err != nil || rate < 0 {
		return 0
	}
	return rate
}

// LowStockThreshold читает порог низкого стока; 0 отключает проверку.
func LowStockThreshold(settings SettingsRepository) int {
	if settings == nil {
		return 0
	}
	raw, err := settings.Get(SettingLowStockThreshold)
	if err != nil || raw == "" {
		return 0
	}
	threshold, err := strconv.Atoi(raw)
	if err != nil || threshold < 0 {
		return 0
	}
	return threshold
}
