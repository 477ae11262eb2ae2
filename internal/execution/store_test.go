package execution

import (
	"errors"
	"path/filepath"
	"testing"
)

func TestStoreSaveGetList(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenStore(filepath.Join(dir, "actions.db"), filepath.Join(dir, "actions.lock"))
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	action := NewAction(NewActionID(), "deposit", CAIP2(44787), Constraints{Simulate: true})
	action.InputAmount = "10000000"
	action.Steps = append(action.Steps, ActionStep{
		StepID:  "approve-token",
		Type:    StepTypeApproval,
		Status:  StepStatusPending,
		ChainID: CAIP2(44787),
		Target:  "0x0000000000000000000000000000000000000001",
		Data:    "0x",
		Value:   "0",
	})
	if err := store.Save(action); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := store.Get(action.ActionID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ActionID != action.ActionID {
		t.Fatalf("unexpected action id: %s", got.ActionID)
	}
	if got.Operation != "deposit" {
		t.Fatalf("unexpected operation: %s", got.Operation)
	}
	if len(got.Steps) != 1 || got.Steps[0].Type != StepTypeApproval {
		t.Fatalf("unexpected steps: %+v", got.Steps)
	}

	got.Status = ActionStatusCompleted
	if err := store.Save(got); err != nil {
		t.Fatalf("Save update failed: %v", err)
	}
	completed, err := store.List(ListFilter{Status: string(ActionStatusCompleted), Limit: 10})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(completed) != 1 {
		t.Fatalf("expected one completed action, got %d", len(completed))
	}
}

func TestStoreListFilters(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenStore(filepath.Join(dir, "actions.db"), filepath.Join(dir, "actions.lock"))
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	for _, item := range []struct {
		op    string
		chain int64
	}{{"deposit", 44787}, {"stake", 44787}, {"deposit", 84532}} {
		action := NewAction(NewActionID(), item.op, CAIP2(item.chain), Constraints{})
		if err := store.Save(action); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	celo, err := store.List(ListFilter{ChainID: CAIP2(44787)})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(celo) != 2 {
		t.Fatalf("expected two celo actions, got %d", len(celo))
	}
	deposits, err := store.List(ListFilter{ChainID: CAIP2(44787), Operation: "deposit"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(deposits) != 1 || deposits[0].Operation != "deposit" {
		t.Fatalf("unexpected filtered actions: %+v", deposits)
	}
	limited, err := store.List(ListFilter{Limit: 1})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}
}

func TestStoreGetMissingAction(t *testing.T) {
	dir := t.TempDir()
	store, err := OpenStore(filepath.Join(dir, "actions.db"), filepath.Join(dir, "actions.lock"))
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if _, err := store.Get("missing"); !errors.Is(err, ErrActionNotFound) {
		t.Fatalf("expected ErrActionNotFound, got %v", err)
	}
}
