// Package transferstore journals pipeline progress into the in-memory database
// so the API and CLI can list transfers and their legs.
package transferstore

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/bridge"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/pipeline"
	"github.com/Longfei-Zhao/Flip-renjs-v3/flipClient/store"
)

// DefaultListLimit caps List when the caller passes a non-positive limit
const DefaultListLimit = 50

// ErrNotFound is returned by Get for an unknown transaction id
var ErrNotFound = errors.New("transfer not found")

// LegView is the journaled state of a leg
type LegView struct {
	Leg           string `json:"leg"`
	State         string `json:"state"`
	Chain         string `json:"chain,omitempty"`
	TxHash        string `json:"tx_hash,omitempty"`
	Submissions   int    `json:"submissions"`
	Confirmations uint64 `json:"confirmations"`
	Error         string `json:"error,omitempty"`
}

// TransferView is the journaled state of a transfer with its legs in execution order
type TransferView struct {
	TxID      string    `json:"tx_id"`
	GatewayID string    `json:"gateway_id"`
	Asset     string    `json:"asset"`
	Direction string    `json:"direction"`
	Amount    string    `json:"amount"`
	State     string    `json:"state"`
	FailedLeg string    `json:"failed_leg,omitempty"`
	Retryable bool      `json:"retryable"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
	Legs      []LegView `json:"legs"`
}

// Store provides database access for the transfer journal.
type Store struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// New creates a new transfer store.
func New(db *gorm.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "transfer_store").Logger(),
	}
}

// Record is a pipeline.Observer. Journal failures are logged and never reach
// the pipeline.
func (s *Store) Record(p pipeline.Progress) {
	if err := s.save(p); err != nil {
		s.logger.Error().Err(err).Str("tx_id", p.TxID).Str("leg", string(p.Leg)).Msg("failed to journal progress")
	}
}

func (s *Store) save(p pipeline.Progress) error {
	return s.db.Transaction(func(db *gorm.DB) error {
		if err := saveTransfer(db, p); err != nil {
			return err
		}
		if p.Leg == "" {
			return nil
		}
		return saveLeg(db, p)
	})
}

func saveTransfer(db *gorm.DB, p pipeline.Progress) error {
	var existing store.Transfer
	err := db.Where("tx_id = ?", p.TxID).First(&existing).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Wrapf(err, "failed to load transfer %s", p.TxID)
	}

	row := existing
	row.TxID = p.TxID
	row.GatewayID = p.GatewayID
	row.Asset = p.Asset
	row.Direction = string(p.Direction)
	if p.Amount != nil {
		row.Amount = p.Amount.String()
	}
	row.State = string(p.State)
	row.Retryable = p.Retryable
	row.FailedLeg = ""
	row.ErrorMsg = ""
	if p.State == pipeline.StateFailed {
		row.FailedLeg = string(p.Leg)
		if p.Err != nil {
			row.ErrorMsg = p.Err.Error()
		}
	}

	if existing.ID != 0 {
		return errors.Wrapf(db.Save(&row).Error, "failed to update transfer %s", p.TxID)
	}
	return errors.Wrapf(db.Create(&row).Error, "failed to create transfer %s", p.TxID)
}

func saveLeg(db *gorm.DB, p pipeline.Progress) error {
	var existing store.TransferLeg
	err := db.Where("tx_id = ? AND leg = ?", p.TxID, string(p.Leg)).First(&existing).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Wrapf(err, "failed to load %s leg of %s", p.Leg, p.TxID)
	}

	row := existing
	row.TxID = p.TxID
	row.Leg = string(p.Leg)
	row.State = string(p.LegState)
	row.Chain = p.Handle.Chain
	row.TxHash = p.Handle.Hash
	row.Submissions = p.Submissions
	row.Confirmations = p.Confirmations
	row.ErrorMsg = ""
	if p.LegState == bridge.LegFailed && p.Err != nil {
		row.ErrorMsg = p.Err.Error()
	}

	if existing.ID != 0 {
		return errors.Wrapf(db.Save(&row).Error, "failed to update %s leg of %s", p.Leg, p.TxID)
	}
	return errors.Wrapf(db.Create(&row).Error, "failed to create %s leg of %s", p.Leg, p.TxID)
}

// Get returns one transfer by pipeline transaction id.
func (s *Store) Get(ctx context.Context, txID string) (*TransferView, error) {
	var row store.Transfer
	err := s.db.WithContext(ctx).Where("tx_id = ?", txID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.Wrapf(ErrNotFound, "tx_id %s", txID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load transfer %s", txID)
	}

	views, err := s.withLegs(ctx, []store.Transfer{row})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// List returns the most recently updated transfers first.
func (s *Store) List(ctx context.Context, limit int) ([]TransferView, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	var rows []store.Transfer
	if err := s.db.WithContext(ctx).
		Order("updated_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "failed to query transfers")
	}
	return s.withLegs(ctx, rows)
}

func (s *Store) withLegs(ctx context.Context, rows []store.Transfer) ([]TransferView, error) {
	views := make([]TransferView, 0, len(rows))
	if len(rows) == 0 {
		return views, nil
	}

	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.TxID)
	}
	var legs []store.TransferLeg
	if err := s.db.WithContext(ctx).Where("tx_id IN ?", ids).Find(&legs).Error; err != nil {
		return nil, errors.Wrap(err, "failed to query transfer legs")
	}
	byTx := make(map[string]map[string]store.TransferLeg, len(rows))
	for _, l := range legs {
		if byTx[l.TxID] == nil {
			byTx[l.TxID] = make(map[string]store.TransferLeg, 3)
		}
		byTx[l.TxID][l.Leg] = l
	}

	for _, r := range rows {
		v := TransferView{
			TxID:      r.TxID,
			GatewayID: r.GatewayID,
			Asset:     r.Asset,
			Direction: r.Direction,
			Amount:    r.Amount,
			State:     r.State,
			FailedLeg: r.FailedLeg,
			Retryable: r.Retryable,
			Error:     r.ErrorMsg,
			UpdatedAt: r.UpdatedAt,
			Legs:      []LegView{},
		}
		for _, name := range []bridge.LegName{bridge.LegIn, bridge.LegConsensus, bridge.LegOut} {
			l, ok := byTx[r.TxID][string(name)]
			if !ok {
				continue
			}
			v.Legs = append(v.Legs, LegView{
				Leg:           l.Leg,
				State:         l.State,
				Chain:         l.Chain,
				TxHash:        l.TxHash,
				Submissions:   l.Submissions,
				Confirmations: l.Confirmations,
				Error:         l.ErrorMsg,
			})
		}
		views = append(views, v)
	}
	return views, nil
}
