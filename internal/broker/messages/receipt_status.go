package messages

import "time"

// ReceiptStatusUpdate comes back from the notification service once a receipt
// channel (WHATSAPP, EMAIL) reports a delivery result.
type ReceiptStatusUpdate struct {
	TransactionID uint64    `json:"transaction_id"`
	Channel       string    `json:"channel"`
	Status        string    `json:"status"`
	UpdatedAt     time.Time `json:"updated_at"`
	Error         *string   `json:"error,omitempty"`
}
