// Package upi строит платёжные ссылки UPI и QR-коды для экрана ручной оплаты.
package upi

import (
	"encoding/base64"
	"fmt"
	"net/url"

	qrcode "github.com/skip2/go-qrcode"
)

// PaymentURI строит deep link формата upi://pay, который открывает любое
// UPI-приложение с предзаполненными реквизитами платежа.
func PaymentURI(payeeID, payeeName string, amount float64, note string) string {
	q := url.Values{}
	q.Set("pa", payeeID)
	q.Set("pn", payeeName)
	q.Set("am", fmt.Sprintf("%.2f", amount))
	q.Set("cu", "INR")
	if note != "" {
		q.Set("tn", note)
	}
	return "upi://pay?" + q.Encode()
}

// QRCodeDataURL кодирует платёжную ссылку в PNG QR-код и возвращает его
// как data URL, пригодный для прямой вставки в <img> на клиенте.
func QRCodeDataURL(uri string) (string, error) {
	const op = "upi.QRCodeDataURL"
	png, err := qrcode.Encode(uri, qrcode.Medium, 256)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
