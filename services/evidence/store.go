// Package evidence persists the off-chain artifacts of the dispute protocol:
// the evidence hashes parties submit and the arbitrator's resolution
// explanations. The ledger itself only stores 32-byte hashes; this store is
// where external tooling looks them up.
package evidence

import (
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// EvidenceRecord indexes a submitted evidence hash by the escrow identifiers
// and the submitting party.
type EvidenceRecord struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	EscrowID     uint64    `gorm:"uniqueIndex:idx_evidence_key"`
	TradeID      uint64    `gorm:"uniqueIndex:idx_evidence_key"`
	Submitter    string    `gorm:"size:64;uniqueIndex:idx_evidence_key"`
	EvidenceHash string    `gorm:"size:64;uniqueIndex:idx_evidence_key"`
	CreatedAt    time.Time
}

// ResolutionRecord indexes the arbitrator's decision for a settled dispute.
type ResolutionRecord struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey"`
	DisputeID    string    `gorm:"size:64;uniqueIndex:idx_resolution_key"`
	DecisionHash string    `gorm:"size:64;uniqueIndex:idx_resolution_key"`
	Winner       string    `gorm:"size:64;uniqueIndex:idx_resolution_key"`
	CreatedAt    time.Time
}

// Store wraps the relational backend holding dispute artifacts.
type Store struct {
	db *gorm.DB
}

// Open creates or opens the sqlite database at path and migrates the schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("evidence: open %s: %w", path, err)
	}
	if err := db.AutoMigrate(&EvidenceRecord{}, &ResolutionRecord{}); err != nil {
		return nil, fmt.Errorf("evidence: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStore wraps an existing gorm handle, migrating the schema. Tests use it
// with an in-memory sqlite database.
func NewStore(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&EvidenceRecord{}, &ResolutionRecord{}); err != nil {
		return nil, fmt.Errorf("evidence: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// RecordEvidence stores one party's evidence hash. Re-recording an identical
// key is a no-op so event replay stays harmless.
func (s *Store) RecordEvidence(escrowID, tradeID uint64, submitter, evidenceHash string) error {
	var record EvidenceRecord
	result := s.db.Where(&EvidenceRecord{
		EscrowID:     escrowID,
		TradeID:      tradeID,
		Submitter:    submitter,
		EvidenceHash: evidenceHash,
	}).Attrs(EvidenceRecord{ID: uuid.New()}).FirstOrCreate(&record)
	return result.Error
}

// RecordResolution stores the arbitrator's decision hash for a dispute.
func (s *Store) RecordResolution(disputeID, decisionHash, winner string) error {
	var record ResolutionRecord
	result := s.db.Where(&ResolutionRecord{
		DisputeID:    disputeID,
		DecisionHash: decisionHash,
		Winner:       winner,
	}).Attrs(ResolutionRecord{ID: uuid.New()}).FirstOrCreate(&record)
	return result.Error
}

// EvidenceFor returns every evidence record submitted for an escrow.
func (s *Store) EvidenceFor(escrowID, tradeID uint64) ([]EvidenceRecord, error) {
	var records []EvidenceRecord
	err := s.db.Where("escrow_id = ? AND trade_id = ?", escrowID, tradeID).
		Order("created_at asc").Find(&records).Error
	return records, err
}

// ResolutionFor returns the resolution recorded for a dispute, if any.
func (s *Store) ResolutionFor(disputeID string) (*ResolutionRecord, error) {
	var record ResolutionRecord
	err := s.db.Where("dispute_id = ?", disputeID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}
