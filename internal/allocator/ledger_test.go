package allocator

import (
	"testing"
	"time"

	"integrity-core/internal/domain"

	"github.com/stretchr/testify/assert"
)

func TestHashTransactionIsDeterministicForIdenticalFields(t *testing.T) {
	ts := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	a := &domain.Transaction{
		ID: "tx-1", Recipient: "creatorA", AmountCents: 500,
		PaymentType: "creator_payout", Direction: domain.DirectionInflow,
		ReferenceID: "ref-1", CreatedAt: ts, PreviousHash: "GENESIS",
	}
	b := &domain.Transaction{
		ID: "tx-1", Recipient: "creatorA", AmountCents: 500,
		PaymentType: "creator_payout", Direction: domain.DirectionInflow,
		ReferenceID: "ref-1", CreatedAt: ts, PreviousHash: "GENESIS",
	}

	assert.Equal(t, hashTransaction(a), hashTransaction(b))
}

func TestHashTransactionChangesWithAmount(t *testing.T) {
	ts := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	a := &domain.Transaction{
		ID: "tx-1", Recipient: "creatorA", AmountCents: 500,
		PaymentType: "creator_payout", Direction: domain.DirectionInflow,
		ReferenceID: "ref-1", CreatedAt: ts, PreviousHash: "GENESIS",
	}
	b := &domain.Transaction{
		ID: "tx-1", Recipient: "creatorA", AmountCents: 501,
		PaymentType: "creator_payout", Direction: domain.DirectionInflow,
		ReferenceID: "ref-1", CreatedAt: ts, PreviousHash: "GENESIS",
	}

	assert.NotEqual(t, hashTransaction(a), hashTransaction(b))
}

func TestHashTransactionChainsOnPreviousHash(t *testing.T) {
	ts := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	genesis := &domain.Transaction{
		ID: "tx-1", Recipient: "creatorA", AmountCents: 500,
		PaymentType: "creator_payout", Direction: domain.DirectionInflow,
		ReferenceID: "ref-1", CreatedAt: ts, PreviousHash: "GENESIS",
	}
	genesisHash := hashTransaction(genesis)

	next := &domain.Transaction{
		ID: "tx-2", Recipient: "creatorB", AmountCents: 300,
		PaymentType: "creator_payout", Direction: domain.DirectionInflow,
		ReferenceID: "ref-2", CreatedAt: ts.Add(time.Minute), PreviousHash: genesisHash,
	}
	tampered := &domain.Transaction{
		ID: "tx-2", Recipient: "creatorB", AmountCents: 300,
		PaymentType: "creator_payout", Direction: domain.DirectionInflow,
		ReferenceID: "ref-2", CreatedAt: ts.Add(time.Minute), PreviousHash: "tampered",
	}

	assert.NotEqual(t, hashTransaction(next), hashTransaction(tampered))
}
