package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/2001118301/bullying-detection-system/internal/ledger"
)

func seedChain(t *testing.T) (string, string) {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "chain.json")
	l, err := ledger.OpenFile(ctx, path, zap.NewNop())
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if _, err := l.Append(ctx, ledger.ActionRegister, "", "System", map[string]any{
		"user_id": "alice@example.com", "password_hash": "secret-hash", "role": "Reporter",
	}); err != nil {
		t.Fatalf("Append register: %v", err)
	}
	if _, err := l.Append(ctx, ledger.ActionCreated, "r-1", "Reporter", map[string]any{
		"reporter_email": "alice@example.com", "student_id": "S1", "description": "pushed", "status": "Submitted",
	}); err != nil {
		t.Fatalf("Append created: %v", err)
	}
	if _, err := l.Append(ctx, ledger.ActionEscalated, "r-1", "Admin", map[string]any{"remarks": "serious"}); err != nil {
		t.Fatalf("Append escalate: %v", err)
	}
	return path, l.Root()
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVerify_validChain(t *testing.T) {
	path, root := seedChain(t)
	out, err := run(t, "--chain", path, "verify")
	if err != nil {
		t.Fatalf("verify: %v\n%s", err, out)
	}
	if !strings.Contains(out, "chain valid: 4 blocks") || !strings.Contains(out, root) {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestVerify_tamperedChainFails(t *testing.T) {
	path, _ := seedChain(t)
	ctx := context.Background()
	store := ledger.NewFileStore(path)
	chain, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	chain[2].Data["description"] = "nothing happened"
	if err := store.Save(ctx, chain); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out, err := run(t, "--chain", path, "--format", "json", "verify")
	if err == nil {
		t.Fatal("expected verify to fail on a tampered chain")
	}
	var res map[string]any
	if jerr := json.Unmarshal([]byte(out), &res); jerr != nil {
		t.Fatalf("decode output: %v\n%s", jerr, out)
	}
	if res["valid"] != false {
		t.Errorf("valid = %v, want false", res["valid"])
	}
}

func TestMissingChainIsNotCreated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.json")
	for _, args := range [][]string{{"verify"}, {"show"}, {"reports"}} {
		if _, err := run(t, append([]string{"--chain", path}, args...)...); err == nil {
			t.Errorf("%v: expected error for missing chain", args)
		}
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("chain file was created: %v", err)
	}
}

func TestShow_singleBlock(t *testing.T) {
	path, _ := seedChain(t)
	out, err := run(t, "--chain", path, "show", "2")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	var b ledger.Block
	if err := json.Unmarshal([]byte(out), &b); err != nil {
		t.Fatalf("decode: %v\n%s", err, out)
	}
	if b.Index != 2 || b.ReportID != "r-1" || b.ActionType != ledger.ActionCreated {
		t.Errorf("unexpected block: %+v", b)
	}
}

func TestShow_rejectsBadIndex(t *testing.T) {
	path, _ := seedChain(t)
	for _, arg := range []string{"-1", "x", "99"} {
		if _, err := run(t, "--chain", path, "show", "--", arg); err == nil {
			t.Errorf("show %s: expected error", arg)
		}
	}
}

func TestShow_summaryHidesPasswordHash(t *testing.T) {
	path, _ := seedChain(t)
	out, err := run(t, "--chain", path, "show")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if strings.Contains(out, "secret-hash") {
		t.Error("password hash leaked into summary")
	}
	if !strings.Contains(out, "password_hash=***") {
		t.Errorf("expected masked hash, got:\n%s", out)
	}
}

func TestTimeline(t *testing.T) {
	path, _ := seedChain(t)
	out, err := run(t, "--chain", path, "timeline", "r-1")
	if err != nil {
		t.Fatalf("timeline: %v", err)
	}
	if !strings.Contains(out, ledger.ActionCreated) || !strings.Contains(out, ledger.ActionEscalated) {
		t.Errorf("timeline missing actions:\n%s", out)
	}

	if _, err := run(t, "--chain", path, "timeline", "nope"); err == nil {
		t.Error("expected error for unknown report")
	}
}

func TestReports_filters(t *testing.T) {
	path, _ := seedChain(t)

	tests := []struct {
		name  string
		args  []string
		want  string
		empty bool
	}{
		{name: "all", args: []string{"reports"}, want: "r-1"},
		{name: "by reporter", args: []string{"reports", "--reporter", "alice@example.com"}, want: "r-1"},
		{name: "other reporter", args: []string{"reports", "--reporter", "bob@example.com"}, empty: true},
		{name: "escalated", args: []string{"reports", "--escalated"}, want: ledger.ActionEscalated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, append([]string{"--chain", path}, tt.args...)...)
			if err != nil {
				t.Fatalf("reports: %v", err)
			}
			if tt.empty {
				if strings.Contains(out, "r-1") {
					t.Errorf("expected no reports, got:\n%s", out)
				}
				return
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("output missing %q:\n%s", tt.want, out)
			}
		})
	}

	if _, err := run(t, "--chain", path, "reports", "--reporter", "a", "--escalated"); err == nil {
		t.Error("expected error for conflicting filters")
	}
}

func TestUser_omitsPasswordHash(t *testing.T) {
	path, _ := seedChain(t)
	out, err := run(t, "--chain", path, "user", "alice@example.com")
	if err != nil {
		t.Fatalf("user: %v", err)
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(out), &data); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := data["password_hash"]; ok {
		t.Error("password_hash should be omitted")
	}
	if data["role"] != "Reporter" {
		t.Errorf("role = %v", data["role"])
	}
}

func TestConfigFileSuppliesChainPath(t *testing.T) {
	path, _ := seedChain(t)
	cfg := filepath.Join(t.TempDir(), "incident.yaml")
	if err := os.WriteFile(cfg, []byte("ledger:\n  path: "+path+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	out, err := run(t, "--config", cfg, "verify")
	if err != nil {
		t.Fatalf("verify via config: %v\n%s", err, out)
	}
}

func TestUnknownFormat(t *testing.T) {
	path, _ := seedChain(t)
	if _, err := run(t, "--chain", path, "--format", "xml", "verify"); err == nil {
		t.Error("expected error for unknown format")
	}
}
