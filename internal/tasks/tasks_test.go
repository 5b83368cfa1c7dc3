package tasks

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewFinalizeRevenueWindowTaskRoundTripsPayload(t *testing.T) {
	payload := FinalizeRevenueWindowPayload{
		WindowStart:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		WindowEnd:     time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
		PaymentType:   "creator_payout",
		GrossCents:    10_000_00,
		TaxesCents:    500_00,
		FeesCents:     100_00,
		RefundsCents:  50_00,
		CostsEstCents: 200_00,
	}

	task, err := NewFinalizeRevenueWindowTask(payload)
	require.NoError(t, err)
	require.Equal(t, TypeFinalizeRevenueWindow, task.Type())

	var decoded FinalizeRevenueWindowPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	require.Equal(t, payload, decoded)
}
