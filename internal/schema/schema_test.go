package schema

import (
	"testing"

	"github.com/spf13/cobra"
)

func TestBuildSchema(t *testing.T) {
	root := &cobra.Command{Use: "intentfi"}
	child := &cobra.Command{Use: "intent", Short: "intent commands"}
	leaf := &cobra.Command{Use: "history", Short: "list stored intents"}
	leaf.Flags().Int("limit", 20, "limit results")
	child.AddCommand(leaf)
	root.AddCommand(child)

	s, err := Build(root, "intent history")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if s.Path != "intentfi intent history" {
		t.Fatalf("unexpected path: %s", s.Path)
	}
	if len(s.Flags) != 1 || s.Flags[0].Name != "limit" {
		t.Fatalf("unexpected flags: %+v", s.Flags)
	}
}

func TestBuildSchemaUnknownCommand(t *testing.T) {
	root := &cobra.Command{Use: "intentfi"}
	root.AddCommand(&cobra.Command{Use: "serve"})
	if _, err := Build(root, "bridge quote"); err == nil {
		t.Fatal("expected error for unknown command path")
	}
}

func TestBuildSchemaMarksRequiredAndGlobalFlags(t *testing.T) {
	root := &cobra.Command{Use: "intentfi"}
	root.PersistentFlags().Bool("json", false, "Output JSON")
	chain := &cobra.Command{Use: "chain"}
	deposit := &cobra.Command{Use: "deposit", RunE: func(*cobra.Command, []string) error { return nil }}
	deposit.Flags().String("token", "", "Token symbol")
	deposit.Flags().String("amount", "", "Decimal amount")
	_ = deposit.MarkFlagRequired("amount")
	chain.AddCommand(deposit)
	root.AddCommand(chain)

	s, err := Build(root, "chain deposit")
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if !s.Runnable {
		t.Fatal("expected deposit to be runnable")
	}
	required := map[string]bool{}
	for _, f := range s.Flags {
		required[f.Name] = f.Required
	}
	if !required["amount"] || required["token"] {
		t.Fatalf("unexpected required flags: %+v", s.Flags)
	}
	if len(s.GlobalFlags) != 1 || s.GlobalFlags[0].Name != "json" {
		t.Fatalf("unexpected global flags: %+v", s.GlobalFlags)
	}
}
