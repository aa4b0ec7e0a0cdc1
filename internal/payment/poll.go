package payment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Global-Optima/zeep-print-agent/internal/model"
)

// PollStatus checks the process every PollInterval until it reaches a
// terminal status. The caller's ctx bounds the total wait; transport errors
// end the poll immediately.
func (c *Client) PollStatus(ctx context.Context, processID string) (model.Transaction, error) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	log := c.logger.With("process", processID)
	for {
		st, err := c.Status(ctx, processID)
		if err != nil {
			return model.Transaction{}, err
		}
		if st.Terminal() {
			log.Info("payment reached terminal status", "status", st.Status, "sub_status", st.SubStatus)
			return c.settle(processID, st)
		}
		log.Debug("payment pending", "status", st.Status, "sub_status", st.SubStatus)

		select {
		case <-ctx.Done():
			return model.Transaction{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// AwaitPayment initiates a payment and polls it to completion.
func (c *Client) AwaitPayment(ctx context.Context, amount decimal.Decimal) (model.Transaction, error) {
	processID, err := c.Initiate(ctx, amount)
	if err != nil {
		return model.Transaction{}, err
	}
	return c.PollStatus(ctx, processID)
}

func (c *Client) settle(processID string, st StatusResult) (model.Transaction, error) {
	if st.Status != StatusSuccess {
		return model.Transaction{}, &model.PaymentFailedError{
			Status:    st.Status,
			SubStatus: st.SubStatus,
			Reason:    st.Message,
		}
	}
	if st.ChequeInfo == nil {
		return model.Transaction{}, model.ErrMissingChequeInfo
	}
	return c.transaction(processID, st)
}

func (c *Client) transaction(processID string, st StatusResult) (model.Transaction, error) {
	cheque := st.ChequeInfo
	amount, err := parseAmount(cheque.Amount)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("invalid cheque amount %q: %w", cheque.Amount, err)
	}

	if st.ProcessID != "" {
		processID = st.ProcessID
	}
	tx := model.Transaction{
		BIN:           cheque.BIN,
		TransactionID: st.TransactionID,
		ProcessID:     processID,
		PaymentMethod: model.PaymentMethod(cheque.Method),
		Amount:        amount,
		Currency:      c.cfg.Currency,
		TerminalID:    cheque.TerminalID,
	}
	if tx.PaymentMethod == model.PaymentMethodCard {
		tx.CardMask = cheque.CardMask
		tx.ICC = cheque.ICC
	} else {
		tx.QRNumber = cheque.OrderNumber
	}
	return tx, nil
}

// parseAmount accepts terminal formatted amounts such as "1 500,00 ₸".
func parseAmount(v string) (decimal.Decimal, error) {
	var b strings.Builder
	for _, r := range v {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		case r == ',':
			b.WriteRune('.')
		}
	}
	return decimal.NewFromString(b.String())
}
