// Package rabbitmq содержит публикацию сообщений в брокер и конфигурацию
// очередей обмена notifications.
package rabbitmq

import (
	"encoding/json"
	"fmt"

	"github.com/streadway/amqp"

	"github.com/quickbill/quickbill-backend/internal/models"
)

// PublishMessage публикует сообщение в RabbitMQ.
func PublishMessage(ch *amqp.Channel, exchange string, routingkey string, message any) error {
	const op = "rabbitmq.PublishMessage"
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = ch.Publish(
		exchange,
		routingkey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// NotificationPublisher отправляет доменные события в обменник notifications.
// Сервисы зависят от него через локальные интерфейсы, что позволяет
// подменять публикацию в тестах.
type NotificationPublisher struct {
	ch *amqp.Channel
}

// NewNotificationPublisher создает публикатор поверх открытого канала.
func NewNotificationPublisher(ch *amqp.Channel) *NotificationPublisher {
	return &NotificationPublisher{ch: ch}
}

// PublishPaymentEvent публикует событие решения по платежу.
func (p *NotificationPublisher) PublishPaymentEvent(event models.PaymentEvent) error {
	return PublishMessage(p.ch, ExchangeName, PaymentRoutingKey, event)
}
