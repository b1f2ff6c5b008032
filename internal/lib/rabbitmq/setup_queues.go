package rabbitmq

// Имена обменника и routing key для событий об оплате.
const (
	ExchangeName      = "notifications"
	PaymentRoutingKey = "payment"
	PaymentQueueName  = "notifications.payment"
)

// QueueConfig описывает очередь и её привязку к обменнику notifications.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// GetNotificationQueues возвращает очереди воркера уведомлений.
func GetNotificationQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: PaymentQueueName, RoutingKey: PaymentRoutingKey},
		// при необходимости дополнительные очереди для других воркеров
	}
}
