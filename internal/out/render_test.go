package out

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/intentfi/intentfi/internal/config"
	"github.com/intentfi/intentfi/internal/model"
)

func TestRenderJSONSelectResultsOnly(t *testing.T) {
	env := model.Envelope{
		Version: "v1",
		Success: true,
		Data:    []map[string]any{{"chainId": 44787, "name": "Celo"}},
		Meta:    model.EnvelopeMeta{Timestamp: time.Now()},
	}
	settings := config.Settings{OutputMode: "json", SelectFields: []string{"chainId"}, ResultsOnly: true}
	var buf bytes.Buffer
	if err := Render(&buf, env, settings); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	var out []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if len(out) != 1 || out[0]["chainId"].(float64) != 44787 {
		t.Fatalf("unexpected output: %s", buf.String())
	}
	if _, ok := out[0]["name"]; ok {
		t.Fatalf("field projection failed: %s", buf.String())
	}
}

func TestRenderPlain(t *testing.T) {
	env := model.Envelope{
		Version: "v1",
		Success: true,
		Data:    []map[string]any{{"description": "Deposited 10 USDC on Celo.", "status": "complete"}},
		Meta:    model.EnvelopeMeta{Timestamp: time.Now()},
	}
	settings := config.Settings{OutputMode: "plain", ResultsOnly: true}
	var buf bytes.Buffer
	if err := Render(&buf, env, settings); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !strings.Contains(buf.String(), "status=complete") {
		t.Fatalf("unexpected plain output: %s", buf.String())
	}
}

func TestRenderPlainNestsSteps(t *testing.T) {
	env := model.Envelope{
		Version: "v1",
		Success: true,
		Data: map[string]any{
			"kind": "plan",
			"steps": []map[string]any{
				{"description": "Deposited 10 USDC on Celo.", "status": "complete"},
				{"description": "Staked 5 CELO in pool 4 on Celo.", "status": "failed"},
			},
		},
		Meta: model.EnvelopeMeta{Command: "intent process", Timestamp: time.Now()},
	}
	var buf bytes.Buffer
	if err := Render(&buf, env, config.Settings{OutputMode: "plain"}); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected header, record, label and two steps, got %q", buf.String())
	}
	if lines[0] != `command="intent process" success=true` {
		t.Fatalf("unexpected header %q", lines[0])
	}
	if lines[1] != "kind=plan" || lines[2] != "  steps:" {
		t.Fatalf("unexpected record lines %q", lines[1:3])
	}
	if !strings.HasPrefix(lines[4], "  - ") || !strings.Contains(lines[4], "status=failed") {
		t.Fatalf("unexpected step line %q", lines[4])
	}
}

func TestRenderSelectDottedField(t *testing.T) {
	env := model.Envelope{
		Version: "v1",
		Success: true,
		Data:    map[string]any{"transfer": map[string]any{"token": "CELO", "amount": "1"}, "status": "pending"},
		Meta:    model.EnvelopeMeta{Timestamp: time.Now()},
	}
	settings := config.Settings{OutputMode: "json", SelectFields: []string{"transfer.token"}, ResultsOnly: true}
	var buf bytes.Buffer
	if err := Render(&buf, env, settings); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("json decode failed: %v", err)
	}
	if len(out) != 1 || out["transfer.token"] != "CELO" {
		t.Fatalf("unexpected projection: %s", buf.String())
	}
}
