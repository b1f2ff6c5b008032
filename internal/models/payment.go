package models

import "time"

// Статусы ручного платежа. После verified или rejected запись неизменяема.
const (
	PaymentPending  = "pending"
	PaymentVerified = "verified"
	PaymentRejected = "rejected"
)

// Plan — строка каталога тарифов subscription_plans.
type Plan struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	DisplayName  string  `json:"displayName"`
	TierLevel    int     `json:"tierLevel"`
	PriceMonthly float64 `json:"priceMonthly"`
	DurationDays int     `json:"durationDays"`
	Features     Features `json:"features"`
	IsActive     bool    `json:"isActive"`
	Priority     int     `json:"priority"`
}

// ManualPayment — заявка на ручную оплату через UPI. Пользователь платит
// по QR-коду, присылает номер транзакции, администратор подтверждает.
type ManualPayment struct {
	ID                   int64      // Идентификатор заявки
	UserID               int64      // Плательщик
	Plan                 string     // Имя тарифа на момент заказа
	Amount               float64    // Сумма к оплате
	PaymentMethod        string     // upi
	QRCodeData           string     // UPI deep link, по которому построен QR
	TransactionReference string     // Номер транзакции от пользователя
	ScreenshotURL        string     // Скриншот оплаты, опционально
	VerificationStatus   string     // pending, verified или rejected
	RejectionReason      string     // Причина отклонения
	VerifiedBy           string     // Email администратора
	VerifiedAt           *time.Time // Момент решения
	CreatedAt            time.Time  // Момент создания заявки
	UpdatedAt            *time.Time // Последнее изменение

	// Поля из join с users для админской очереди.
	UserEmail string
	UserName  string
}

// PaymentOrder — данные для экрана оплаты: реквизиты, deep link и QR.
type PaymentOrder struct {
	PaymentID   int64   `json:"paymentId"`
	Plan        string  `json:"plan"`
	Amount      float64 `json:"amount"`
	UPIID       string  `json:"upiId"`
	PayeeName   string  `json:"payeeName"`
	UPIURI      string  `json:"upiUri"`
	QRCodeImage string  `json:"qrCodeImage"` // data:image/png;base64,...
}

// PaymentEvent — сообщение о решении по платежу, публикуется в RabbitMQ
// и превращается воркером в письмо пользователю.
type PaymentEvent struct {
	PaymentID int64   `json:"payment_id"`
	UserEmail string  `json:"user_email"`
	UserName  string  `json:"user_name"`
	Plan      string  `json:"plan"`
	Amount    float64 `json:"amount"`
	Status    string  `json:"status"` // verified или rejected
	Reason    string  `json:"reason,omitempty"`
}
