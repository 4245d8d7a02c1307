package domain

import "encoding/json"

// TransferRequest is the body of the backend transfer call. KarmaPoints stays a
// json.Number so the server can reject fractional or negative values itself.
type TransferRequest struct {
	KarmaPoints json.Number `json:"karmaPoints"`
	UserAddress string      `json:"userAddress"`
}

// TransferResponse is returned by the backend once the transfer is confirmed.
type TransferResponse struct {
	Success     bool   `json:"success"`
	TxHash      string `json:"txHash"`
	BlockNumber uint64 `json:"blockNumber"`
	Message     string `json:"message"`
}

// ErrorResponse is the backend failure body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
