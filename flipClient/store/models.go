// Package store contains the GORM models of the in-memory transfer journal.
//
// Tables:
//
//	transfers       one row per bridge transaction
//	transfer_legs   one row per (transaction, leg)
package store

import (
	"gorm.io/gorm"
)

// Transfer is the latest known state of one bridge transaction.
type Transfer struct {
	gorm.Model
	TxID      string `gorm:"uniqueIndex;not null"` // pipeline transaction id
	GatewayID string `gorm:"index"`
	Asset     string // asset symbol
	Direction string // "mint" or "burn"
	Amount    string // smallest units, base 10
	State     string `gorm:"index"` // pipeline state, e.g. "out_pending", "completed", "failed"
	FailedLeg string // set while State is "failed"
	Retryable bool
	ErrorMsg  string `gorm:"type:text"`
}

// TransferLeg is the latest known state of one leg of a transfer.
type TransferLeg struct {
	gorm.Model
	TxID          string `gorm:"uniqueIndex:idx_tx_leg;not null"`
	Leg           string `gorm:"uniqueIndex:idx_tx_leg;not null"` // "in", "consensus" or "out"
	State         string // "pending", "submitted", "waiting_confirmation", "confirmed", "failed"
	Chain         string
	TxHash        string
	Submissions   int
	Confirmations uint64
	ErrorMsg      string `gorm:"type:text"`
}
