package api

import "time"

// QueryResponse represents the standard query response format
type QueryResponse struct {
	Data        interface{} `json:"data"`
	LastFetched time.Time   `json:"last_fetched"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// GameResponse is an open game with its amount in smallest units and in coins
type GameResponse struct {
	Index     int    `json:"index"`
	Initiator string `json:"initiator"`
	Symbol    string `json:"symbol"`
	Amount    string `json:"amount"`
	Display   string `json:"display"`
}

// SnapshotResponse is one holder's balances keyed by asset symbol, in coins
type SnapshotResponse struct {
	Holder   string            `json:"holder"`
	Address  string            `json:"address"`
	Balances map[string]string `json:"balances"`
	TakenAt  time.Time         `json:"taken_at"`
}

// BalancesResponse is the last complete pair of balance snapshots
type BalancesResponse struct {
	User     SnapshotResponse `json:"user"`
	Contract SnapshotResponse `json:"contract"`
}
