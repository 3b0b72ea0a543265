/*

This file stores an audit trail of produced reallocation plans. Records are written after a
plan is built and are only read back for inspection; planning never depends on them.

*/

package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq" // PostgreSQL driver for array support
	"github.com/rs/zerolog/log"

	"github.com/elys-network/reallocator/internal/planner"
)

// PlanRecord is one row of plan_records.
type PlanRecord struct {
	PlanID        uuid.UUID       `json:"plan_id"`
	CreatedAt     time.Time       `json:"created_at"`
	Vault         string          `json:"vault"`
	Destination   string          `json:"destination"`
	SourceKind    string          `json:"source_kind"`
	BlockNumber   uint64          `json:"block_number,omitempty"`
	Requested     string          `json:"requested"`
	Absorbable    string          `json:"absorbable"`
	Planned       string          `json:"planned"`
	Fulfilled     bool            `json:"fulfilled"`
	SourceMarkets []string        `json:"source_markets"`
	Withdrawals   json.RawMessage `json:"withdrawals"`
	Calldata      string          `json:"calldata,omitempty"`
}

// NewPlanRecord flattens a plan result for storage.
func NewPlanRecord(planID uuid.UUID, result *planner.PlanResult, sourceKind string, blockNumber uint64) (PlanRecord, error) {
	withdrawals, err := json.Marshal(result.Withdrawals)
	if err != nil {
		return PlanRecord{}, fmt.Errorf("failed to marshal withdrawals: %w", err)
	}

	markets := make([]string, 0, len(result.Withdrawals))
	for _, w := range result.Withdrawals {
		markets = append(markets, w.SortKey)
	}

	record := PlanRecord{
		PlanID:        planID,
		CreatedAt:     time.Now().UTC(),
		Vault:         result.Vault.Hex(),
		Destination:   result.Destination.String(),
		SourceKind:    sourceKind,
		BlockNumber:   blockNumber,
		Requested:     result.Requested.String(),
		Absorbable:    result.Absorbable.String(),
		Planned:       result.Total.String(),
		Fulfilled:     result.Fulfilled,
		SourceMarkets: markets,
		Withdrawals:   withdrawals,
	}
	if result.Instruction != nil {
		record.Calldata = result.Instruction.Hex()
	}
	return record, nil
}

// SavePlanRecord inserts a plan record.
func SavePlanRecord(ctx context.Context, record PlanRecord) error {
	if DB == nil {
		return ErrDBNotInitialized
	}

	query := `
		INSERT INTO plan_records (
			plan_id, created_at, vault_address, destination_market, source_kind, block_number,
			requested_amount, absorbable_amount, planned_amount, fulfilled,
			source_markets, withdrawals, calldata
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13);
	`

	var block sql.NullInt64
	if record.BlockNumber > 0 {
		block = sql.NullInt64{Int64: int64(record.BlockNumber), Valid: true}
	}
	var calldata sql.NullString
	if record.Calldata != "" {
		calldata = sql.NullString{String: record.Calldata, Valid: true}
	}

	_, err := DB.ExecContext(ctx, query,
		record.PlanID, record.CreatedAt, record.Vault, record.Destination, record.SourceKind, block,
		record.Requested, record.Absorbable, record.Planned, record.Fulfilled,
		pq.Array(record.SourceMarkets), []byte(record.Withdrawals), calldata,
	)
	if err != nil {
		return fmt.Errorf("failed to save plan record: %w", err)
	}

	log.Info().
		Str("plan_id", record.PlanID.String()).
		Str("vault", record.Vault).
		Str("planned", record.Planned).
		Msg("Plan record saved to database")
	return nil
}

// GetRecentPlanRecords returns up to limit records for vault, newest first.
func GetRecentPlanRecords(ctx context.Context, vault string, limit int) ([]PlanRecord, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT plan_id, created_at, vault_address, destination_market, source_kind, block_number,
			requested_amount::TEXT, absorbable_amount::TEXT, planned_amount::TEXT, fulfilled,
			source_markets, withdrawals, calldata
		FROM plan_records
		WHERE vault_address = $1
		ORDER BY created_at DESC
		LIMIT $2;
	`
	rows, err := DB.QueryContext(ctx, query, vault, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query plan records: %w", err)
	}
	defer rows.Close()

	var records []PlanRecord
	for rows.Next() {
		var (
			r           PlanRecord
			block       sql.NullInt64
			withdrawals []byte
			calldata    sql.NullString
		)
		if err := rows.Scan(
			&r.PlanID, &r.CreatedAt, &r.Vault, &r.Destination, &r.SourceKind, &block,
			&r.Requested, &r.Absorbable, &r.Planned, &r.Fulfilled,
			pq.Array(&r.SourceMarkets), &withdrawals, &calldata,
		); err != nil {
			return nil, fmt.Errorf("failed to scan plan record: %w", err)
		}
		if block.Valid {
			r.BlockNumber = uint64(block.Int64)
		}
		r.Withdrawals = withdrawals
		r.Calldata = calldata.String
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate plan records: %w", err)
	}
	return records, nil
}
