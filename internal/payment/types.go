package payment

import "encoding/json"

// Terminal statuses reported by /status and /actualize.
const (
	StatusWait    = "wait"
	StatusSuccess = "success"
	StatusFail    = "fail"
	StatusUnknown = "unknown"
)

// Sub-statuses that end a payment even while the status is still "wait".
const (
	SubStatusQRFailure       = "QrTransactionFailure"
	SubStatusCardFailure     = "CardTransactionFailure"
	SubStatusProcessCanceled = "ProcessCancelled"
)

var failureSubStatuses = map[string]bool{
	SubStatusQRFailure:       true,
	SubStatusCardFailure:     true,
	SubStatusProcessCanceled: true,
}

// Credential is the terminal token pair plus the cashier it was issued to.
type Credential struct {
	AccessToken    string `json:"accessToken"`
	RefreshToken   string `json:"refreshToken"`
	ExpirationDate string `json:"expirationDate"`
	CashierName    string `json:"cashierName,omitempty"`
}

type envelope struct {
	Data       json.RawMessage `json:"data"`
	StatusCode int             `json:"statusCode"`
	ErrorText  string          `json:"errorText"`
}

type processResponse struct {
	ProcessID string `json:"processId"`
	Status    string `json:"status"`
}

// StatusResult is one observation of a payment process.
type StatusResult struct {
	ProcessID     string      `json:"processId"`
	Status        string      `json:"status"`
	SubStatus     string      `json:"subStatus,omitempty"`
	TransactionID string      `json:"transactionId,omitempty"`
	Message       string      `json:"message,omitempty"`
	ChequeInfo    *ChequeInfo `json:"chequeInfo,omitempty"`
}

// Terminal reports whether no further transition will happen.
func (s StatusResult) Terminal() bool {
	switch s.Status {
	case StatusSuccess, StatusFail, StatusUnknown:
		return true
	}
	return failureSubStatuses[s.SubStatus]
}

type ChequeInfo struct {
	StoreName         string `json:"storeName"`
	City              string `json:"city"`
	Address           string `json:"address"`
	Status            string `json:"status"`
	Amount            string `json:"amount"`
	Date              string `json:"date"`
	BIN               string `json:"bin"`
	TerminalID        string `json:"terminalId"`
	OrderNumber       string `json:"orderNumber,omitempty"`
	CardMask          string `json:"cardMask,omitempty"`
	ICC               string `json:"icc,omitempty"`
	RRN               string `json:"rrn,omitempty"`
	AuthorizationCode string `json:"authorizationCode,omitempty"`
	HostResponseCode  string `json:"hostResponseCode,omitempty"`
	Method            string `json:"method"`
}

type DeviceInfo struct {
	PosNum     string `json:"posNum"`
	SerialNum  string `json:"serialNum"`
	TerminalID string `json:"terminalId"`
}
