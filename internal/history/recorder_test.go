package history

import (
	"context"
	"errors"
	"testing"
	"time"

	clierr "github.com/intentfi/intentfi/internal/errors"
	"github.com/intentfi/intentfi/internal/intent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type brokenStore struct{}

func (brokenStore) Insert(context.Context, intent.StoredIntent) error {
	return errors.New("disk full")
}

func (brokenStore) ListByUser(context.Context, string, int) ([]intent.StoredIntent, error) {
	return nil, errors.New("disk full")
}

func TestRecorderRecordDerivesTypeAndChain(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	rec := NewRecorder(store, zap.NewNop(), WithClock(func() time.Time { return now }))

	id, err := rec.Record(context.Background(), intent.RecordRequest{
		UserAddress: "0xabc",
		Description: "Deposit 10 USDC on Celo",
		Steps: []intent.Step{
			{Description: "Deposited 10 USDC on Celo.", Chain: "Celo", Status: intent.StepComplete, TransactionHash: "0x01"},
			{Description: "Skipped", Chain: "Celo", Status: intent.StepFailed, TransactionHash: "0x02"},
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	got, err := rec.Fetch(context.Background(), "0xABC", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)
	assert.Equal(t, intent.TypeDeposit, got[0].Type)
	assert.Equal(t, "Celo", got[0].Chain)
	assert.Equal(t, now, got[0].CreatedAt)
	assert.Equal(t, "0x01", got[0].Steps[0].TransactionHash)
	assert.Empty(t, got[0].Steps[1].TransactionHash)
}

func TestRecorderValidation(t *testing.T) {
	rec := NewRecorder(NewMemoryStore(), nil)
	_, err := rec.Record(context.Background(), intent.RecordRequest{Type: intent.TypeDeposit})
	assert.True(t, clierr.HasCode(err, clierr.CodeUsage))

	_, err = rec.Record(context.Background(), intent.RecordRequest{UserAddress: "0xabc", Type: "lottery"})
	assert.True(t, clierr.HasCode(err, clierr.CodeUsage))

	_, err = rec.Fetch(context.Background(), " ", 10)
	assert.True(t, clierr.HasCode(err, clierr.CodeUsage))
}

func TestRecorderStorageErrorsAreDistinct(t *testing.T) {
	rec := NewRecorder(brokenStore{}, nil)
	_, err := rec.Record(context.Background(), intent.RecordRequest{UserAddress: "0xabc", Type: intent.TypeOther})
	assert.True(t, clierr.HasCode(err, clierr.CodeStorage))
	assert.Equal(t, "storage_error", clierr.TypeOf(err))

	rec.RecordAsync(intent.RecordRequest{UserAddress: "0xabc", Type: intent.TypeOther})
	rec.Wait()
}

func TestRecorderRecordAsync(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(store, nil)
	rec.RecordAsync(intent.RecordRequest{UserAddress: "0xabc", Steps: []intent.Step{{Description: "Staked 5 CELO in pool 4 on Celo.", Status: intent.StepComplete}}})
	rec.Wait()
	got, err := rec.Fetch(context.Background(), "0xabc", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, intent.TypeStake, got[0].Type)
}
