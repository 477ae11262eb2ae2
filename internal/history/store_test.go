package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/intentfi/intentfi/internal/intent"
)

func TestSQLiteStoreInsertList(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenSQLite(filepath.Join(dir, "intents.db"), filepath.Join(dir, "intents.lock"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	older := intent.StoredIntent{
		ID:          "intent-1",
		UserAddress: "0x00000000000000000000000000000000000000AA",
		Description: "Deposit 10 USDC on Celo",
		Chain:       "Celo",
		Type:        intent.TypeDeposit,
		Steps:       []intent.Step{{Description: "Deposited 10 USDC on Celo.", Chain: "Celo", Status: intent.StepComplete, TransactionHash: "0xabc"}},
		CreatedAt:   base,
	}
	newer := older
	newer.ID = "intent-2"
	newer.Type = intent.TypeStake
	newer.CreatedAt = base.Add(time.Minute)
	other := older
	other.ID = "intent-3"
	other.UserAddress = "0x00000000000000000000000000000000000000bb"

	for _, rec := range []intent.StoredIntent{older, newer, other} {
		if err := store.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}
	changed := older
	changed.Description = "rewritten"
	if err := store.Insert(ctx, changed); err != nil {
		t.Fatalf("duplicate Insert failed: %v", err)
	}

	got, err := store.ListByUser(ctx, "0x00000000000000000000000000000000000000aa", 10)
	if err != nil {
		t.Fatalf("ListByUser failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 intents, got %d", len(got))
	}
	if got[0].ID != "intent-2" || got[1].ID != "intent-1" {
		t.Fatalf("expected newest first, got %s then %s", got[0].ID, got[1].ID)
	}
	if got[1].Description != "Deposit 10 USDC on Celo" {
		t.Fatalf("stored intent was modified: %q", got[1].Description)
	}
	if got[1].Steps[0].TransactionHash != "0xabc" {
		t.Fatalf("unexpected step payload: %+v", got[1].Steps[0])
	}

	limited, err := store.ListByUser(ctx, "0x00000000000000000000000000000000000000aa", 1)
	if err != nil {
		t.Fatalf("ListByUser with limit failed: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != "intent-2" {
		t.Fatalf("unexpected limited list: %+v", limited)
	}
}
