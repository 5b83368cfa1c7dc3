package allocator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"integrity-core/internal/domain"
	"integrity-core/pkg/db/option"
	"integrity-core/pkg/errutil"
	"integrity-core/pkg/repository"
	"integrity-core/pkg/sequence"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Ledger writes Step D's side effects: one inflow Transaction per paid
// creator, chained by hash for tamper evidence, plus the matching
// current_balance_cents increment.
type Ledger struct {
	db           *gorm.DB
	node         *snowflake.Node
	sequence     sequence.Generator
	transactions repository.Repository[domain.Transaction]
}

func NewLedger(db *gorm.DB, node *snowflake.Node, seq sequence.Generator) *Ledger {
	return &Ledger{
		db:           db,
		node:         node,
		sequence:     seq,
		transactions: repository.ProvideStore[domain.Transaction](db),
	}
}

// Commit writes ledger rows for every creator with a positive allocation,
// in deterministic creator-id order so replays produce identical
// Transaction sequences (§5). It must run inside the same transaction the
// Revenue Window Finalizer uses for its RevenueWindow insert, so callers
// pass the *gorm.DB to use.
func (l *Ledger) Commit(ctx context.Context, tx *gorm.DB, result *Result, paymentType string) ([]domain.Transaction, error) {
	tx = tx.Scopes(option.LockingUpdate)
	transactions := l.transactions.WithTrx(tx)

	creatorIDs := make([]string, 0, len(result.Allocations))
	for id, a := range result.Allocations {
		if a.AllocatedCents > 0 {
			creatorIDs = append(creatorIDs, id)
		}
	}
	sort.Strings(creatorIDs)

	lastHash, err := l.lastHash(ctx, tx)
	if err != nil {
		return nil, err
	}

	written := make([]domain.Transaction, 0, len(creatorIDs))
	for _, creatorID := range creatorIDs {
		a := result.Allocations[creatorID]

		reference, err := l.sequence.NextTransactionCode(ctx)
		if err != nil {
			return nil, errutil.TransientStorage("failed to generate transaction reference", err)
		}

		row := &domain.Transaction{
			ID:           l.node.Generate().String(),
			CreatedAt:    time.Now().UTC(),
			Recipient:    creatorID,
			AmountCents:  a.AllocatedCents,
			PaymentType:  paymentType,
			Status:       domain.TransactionStatusPending,
			Direction:    domain.DirectionInflow,
			ReferenceID:  reference,
			PreviousHash: lastHash,
		}
		row.Hash = hashTransaction(row)

		if err := transactions.Create(ctx, row); err != nil {
			return nil, errutil.TransientStorage("failed to insert transaction", err)
		}
		lastHash = row.Hash
		written = append(written, *row)

		if err := tx.Model(&domain.User{}).Where("id = ?", creatorID).
			UpdateColumn("current_balance_cents", gorm.Expr("current_balance_cents + ?", a.AllocatedCents)).Error; err != nil {
			return nil, errutil.TransientStorage("failed to update creator balance", err)
		}
	}

	return written, nil
}

// CompensatingDelete removes the Transaction rows just inserted for a
// failed window run and reverses their balance increments, per the §4.8
// failure-semantics requirement to compensate rather than leave orphaned
// ledger rows.
func (l *Ledger) CompensatingDelete(ctx context.Context, tx *gorm.DB, written []domain.Transaction) error {
	for _, row := range written {
		if err := tx.Where("id = ?", row.ID).Delete(&domain.Transaction{}).Error; err != nil {
			return errutil.PartialCommit("failed to compensate transaction insert", err)
		}
		if err := tx.Model(&domain.User{}).Where("id = ?", row.Recipient).
			UpdateColumn("current_balance_cents", gorm.Expr("current_balance_cents - ?", row.AmountCents)).Error; err != nil {
			return errutil.PartialCommit("failed to compensate balance increment", err)
		}
	}
	return nil
}

func (l *Ledger) lastHash(ctx context.Context, tx *gorm.DB) (string, error) {
	var last domain.Transaction
	err := tx.WithContext(ctx).Order("created_at DESC").First(&last).Error
	if err == gorm.ErrRecordNotFound {
		return "GENESIS", nil
	}
	if err != nil {
		return "", errutil.TransientStorage("failed to fetch last ledger hash", err)
	}
	return last.Hash, nil
}

func hashTransaction(t *domain.Transaction) string {
	fields := map[string]string{
		"id":            t.ID,
		"recipient":     t.Recipient,
		"amount_cents":  fmt.Sprintf("%d", t.AmountCents),
		"payment_type":  t.PaymentType,
		"direction":     t.Direction,
		"reference_id":  t.ReferenceID,
		"created_at":    t.CreatedAt.UTC().Format(time.RFC3339Nano),
		"previous_hash": t.PreviousHash,
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, fields[k]))
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
