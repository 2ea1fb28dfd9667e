package btc

import "github.com/shopspring/decimal"

// walletTransaction is the subset of the gettransaction result used for confirmations
type walletTransaction struct {
	TxID          string `json:"txid"`
	Confirmations int64  `json:"confirmations"`
	BlockHeight   uint64 `json:"blockheight"`
}

// rawTransaction is the subset of the verbose getrawtransaction result
type rawTransaction struct {
	TxID          string `json:"txid"`
	Confirmations int64  `json:"confirmations"`
	BlockHash     string `json:"blockhash"`
}

// unspentOutput is one entry of listunspent
type unspentOutput struct {
	TxID          string          `json:"txid"`
	Vout          uint32          `json:"vout"`
	Address       string          `json:"address"`
	Amount        decimal.Decimal `json:"amount"`
	Confirmations int64           `json:"confirmations"`
}
