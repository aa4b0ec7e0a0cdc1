package model

import "github.com/shopspring/decimal"

type PaymentMethod string

const (
	PaymentMethodQR   PaymentMethod = "qr"
	PaymentMethodCard PaymentMethod = "card"
)

// Transaction is the normalized record of one successful terminal payment.
type Transaction struct {
	BIN           string          `json:"bin"`
	TransactionID string          `json:"transactionId"`
	ProcessID     string          `json:"processId"`
	PaymentMethod PaymentMethod   `json:"paymentMethod"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	QRNumber      string          `json:"qrNumber,omitempty"`
	CardMask      string          `json:"cardMask,omitempty"`
	ICC           string          `json:"icc,omitempty"`
	TerminalID    string          `json:"terminalId,omitempty"`
}
