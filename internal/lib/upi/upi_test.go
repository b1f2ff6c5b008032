package upi

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaymentURI(t *testing.T) {
	tests := []struct {
		name      string
		payeeID   string
		payeeName string
		amount    float64
		note      string
		wantAm    string
	}{
		{
			name:      "gold plan order",
			payeeID:   "quickbill@upi",
			payeeName: "QuickBill",
			amount:    999,
			note:      "QuickBill gold subscription",
			wantAm:    "999.00",
		},
		{
			name:      "fractional amount",
			payeeID:   "quickbill@upi",
			payeeName: "QuickBill",
			amount:    499.5,
			note:      "",
			wantAm:    "499.50",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uri := PaymentURI(tt.payeeID, tt.payeeName, tt.amount, tt.note)

			require.True(t, strings.HasPrefix(uri, "upi://pay?"))

			q, err := url.ParseQuery(strings.TrimPrefix(uri, "upi://pay?"))
			require.NoError(t, err)
			assert.Equal(t, tt.payeeID, q.Get("pa"))
			assert.Equal(t, tt.payeeName, q.Get("pn"))
			assert.Equal(t, tt.wantAm, q.Get("am"))
			assert.Equal(t, "INR", q.Get("cu"))
			if tt.note == "" {
				assert.False(t, q.Has("tn"))
			} else {
				assert.Equal(t, tt.note, q.Get("tn"))
			}
		})
	}
}

func TestQRCodeDataURL(t *testing.T) {
	uri := PaymentURI("quickbill@upi", "QuickBill", 999, "QuickBill gold subscription")

	dataURL, err := QRCodeDataURL(uri)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dataURL, "data:image/png;base64,"))
	assert.Greater(t, len(dataURL), len("data:image/png;base64,"))
}
