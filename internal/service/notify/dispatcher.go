package notify

import (
	log "github.com/sirupsen/logrus"

	"github.com/zyfzsi/ldc-shop/internal/domain"
)

// LogDispatcher пишет уведомления в структурированный лог. Используется как
// реализация по умолчанию: реальные каналы доставки подключаются снаружи.
type LogDispatcher struct {
	logger *log.Entry
}

// NewLogDispatcher создаёт лог-диспетчер уведомлений.
func NewLogDispatcher(logger *log.Entry) *LogDispatcher {
	if logger == nil {
		logger = log.WithField("component", "notify")
	}
	return &LogDispatcher{logger: logger}
}

// Dispatch пишет уведомление в лог и никогда не возвращает ошибку.
func (d *LogDispatcher) Dispatch(n domain.Notification) error {
	d.logger.WithFields(log.Fields{
		"user_id":     n.UserID,
		"type":        n.Type,
		"title_key":   n.TitleKey,
		"content_key": n.ContentKey,
		"data":        n.Data,
	}).Info("notification dispatched")
	return nil
}

var _ domain.NotificationDispatcher = (*LogDispatcher)(nil)

// MockDispatcher — конфигурируемая заглушка для тестов.
type MockDispatcher struct {
	Err   error
	Calls []domain.Notification
}

// NewMockDispatcher возвращает mock с успешным сценарием по умолчанию.
func NewMockDispatcher() *MockDispatcher {
	return &MockDispatcher{}
}

// Dispatch запоминает уведомление и возвращает настроенную ошибку.
func (m *MockDispatcher) Dispatch(n domain.Notification) error {
	m.Calls = append(m.Calls, n)
	return m.Err
}

var _ domain.NotificationDispatcher = (*MockDispatcher)(nil)
