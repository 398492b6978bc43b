package types

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// SettleReceipt is the settlement confirmation returned by the facilitator
// on success. It travels back to the client base64-encoded in the
// X-PAYMENT-RESPONSE header.
type SettleReceipt struct {
	Success     bool   `json:"success"`
	Transaction string `json:"transaction"`
	Network     string `json:"network"`
	Payer       string `json:"payer,omitempty"`
}

// EncodeToBase64String encodes the receipt for the response header.
func (r *SettleReceipt) EncodeToBase64String() (string, error) {
	jsonBytes, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to encode settle receipt: %w", err)
	}
	return base64.StdEncoding.EncodeToString(jsonBytes), nil
}

// DecodeReceiptFromBase64 decodes a receipt from a response header value.
func DecodeReceiptFromBase64(encoded string) (*SettleReceipt, error) {
	decodedBytes, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 receipt: %w", err)
	}

	var receipt SettleReceipt
	if err := json.Unmarshal(decodedBytes, &receipt); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settle receipt: %w", err)
	}

	return &receipt, nil
}
