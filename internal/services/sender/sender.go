// Package sender превращает события решения по платежу в письма
// пользователям через SMTP.
package sender

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	smtplib "github.com/quickbill/quickbill-backend/internal/lib/smtp"
	"github.com/quickbill/quickbill-backend/internal/lib/sl"
	"github.com/quickbill/quickbill-backend/internal/models"
)

// SenderService отправляет письма по событиям из очереди платежей.
type SenderService struct {
	transport smtplib.TransportInterface
	log       *slog.Logger
}

// NewSenderService создает новый экземпляр SenderService.
func NewSenderService(transport smtplib.TransportInterface, log *slog.Logger) *SenderService {
	return &SenderService{
		transport: transport,
		log:       log,
	}
}

// SendPaymentDecision обрабатывает одно сообщение очереди платежей:
// подтверждённый платеж получает письмо об активации, отклонённый —
// письмо с причиной.
func (s *SenderService) SendPaymentDecision(body []byte) error {
	var event models.PaymentEvent
	if err := json.Unmarshal(body, &event); err != nil {
		s.log.Error("failed to unmarshal payment event", sl.Err(err))
		return fmt.Errorf("error unmarshalling message: %w", err)
	}

	to := []string{event.UserEmail}
	var subject, bodyText string
	switch event.Status {
	case models.PaymentVerified:
		subject = "Your QuickBill subscription is active"
		bodyText = fmt.Sprintf("Hello %s!\n\nYour payment of Rs. %.2f has been verified.\nYour %s subscription is now active.\n\nThank you for choosing QuickBill.",
			event.UserName, event.Amount, event.Plan)
	case models.PaymentRejected:
		subject = "Your QuickBill payment could not be verified"
		bodyText = fmt.Sprintf("Hello %s!\n\nWe could not verify your payment of Rs. %.2f for the %s plan.\nReason: %s\n\nPlease check the transaction reference and try again.",
			event.UserName, event.Amount, event.Plan, event.Reason)
	default:
		s.log.Warn("unknown payment event status", slog.String("status", event.Status))
		return nil
	}

	return s.sendEmail(to, subject, bodyText)
}

func (s *SenderService) sendEmail(to []string, subject, bodyText string) error {
	msg := strings.Join([]string{
		"From: " + s.transport.GetSMTPUser(),
		"To: " + strings.Join(to, ";"),
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"",
		bodyText,
	}, "\r\n")

	client, err := s.transport.Connect()
	if err != nil {
		s.log.Error("failed to connect to SMTP server", sl.Err(err))
		return err
	}
	defer func() { _ = client.Close() }()

	if err := client.Mail(s.transport.GetSMTPUser()); err != nil {
		s.log.Error("failed to set MAIL FROM", slog.String("from", s.transport.GetSMTPUser()), sl.Err(err))
		return err
	}

	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			s.log.Error("failed to set RCPT TO", slog.String("recipient", addr), sl.Err(err))
			return err
		}
	}

	wc, err := client.Data()
	if err != nil {
		s.log.Error("failed to get Data writer", sl.Err(err))
		return err
	}

	if _, err = wc.Write([]byte(msg)); err != nil {
		s.log.Error("failed to write email body", sl.Err(err))
		return err
	}

	if err = wc.Close(); err != nil {
		s.log.Error("failed to close Data writer", sl.Err(err))
		return err
	}

	if err = client.Quit(); err != nil {
		s.log.Error("failed to quit SMTP client", sl.Err(err))
		return err
	}

	s.log.Info("email sent successfully", slog.Any("to", to))
	return nil
}
