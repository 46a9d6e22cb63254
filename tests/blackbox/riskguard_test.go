//go:build blackbox

package blackbox

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func TestDailyLossHaltIsPersistedAndAudited(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "riskguard.db")

	run(t, dir, nil, "--db", dbPath, "equity", "main", "10000")
	out := run(t, dir, nil, "--db", dbPath, "equity", "main", "9400")
	if !contains(out, "HALTED (daily_loss_exceeded)") {
		t.Fatalf("expected a daily-loss halt, got:\n%s", out)
	}

	out = run(t, dir, nil, "--db", dbPath,
		"check", "main", "--symbol", "EUR/USD", "--side", "buy", "--size", "1", "--entry", "1.1")
	if !contains(out, "REJECTED") || !contains(out, "trading halted: daily_loss_exceeded") {
		t.Fatalf("expected rejection while halted, got:\n%s", out)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	var halted bool
	if err := db.QueryRow(`SELECT halted FROM portfolio_state WHERE portfolio_id = 'main'`).Scan(&halted); err != nil {
		t.Fatal(err)
	}
	if !halted {
		t.Fatal("expected halted state to be persisted")
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM trade_checks WHERE approved = 0`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 rejected trade check, got %d", n)
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM risk_events WHERE kind = 'auto_halt'`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 auto_halt event, got %d", n)
	}

	if _, err := os.Stat(filepath.Join(dir, "spill.jsonl")); !os.IsNotExist(err) {
		t.Fatalf("expected no spilled audit entries, stat err: %v", err)
	}
}

func TestVaRFromHistoryDirectory(t *testing.T) {
	dir := t.TempDir()
	hist := filepath.Join(dir, "history")
	if err := os.MkdirAll(hist, 0o755); err != nil {
		t.Fatal(err)
	}

	// 100 returns from -0.05 up in steps of 0.001: the worst five average -0.048.
	writeReturnsCSV(t, hist, "portfolio_main", 100, func(i int) float64 {
		return -0.05 + float64(i)*0.001
	})

	env := []string{"RISKGUARD_HISTORY_DIR=" + hist}
	dbPath := filepath.Join(dir, "riskguard.db")

	out := run(t, dir, env, "--db", dbPath, "var", "main", "--method", "historical", "--days", "100")
	if !contains(out, "historical over 100 observations") {
		t.Fatalf("unexpected window, got:\n%s", out)
	}
	if !contains(out, "VaR 95:  460.00") || !contains(out, "CVaR 95: 480.00") {
		t.Fatalf("unexpected VaR figures, got:\n%s", out)
	}
	if contains(out, "low confidence") {
		t.Fatalf("100 observations should not be low confidence:\n%s", out)
	}
}

func TestExportWorkbook(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "riskguard.db")

	run(t, dir, nil, "--db", dbPath, "check", "main", "--symbol", "BTC/USD", "--size", "0.01", "--entry", "50000", "--stop", "48000")
	run(t, dir, nil, "--db", dbPath, "snapshot", "main")

	xlsx := filepath.Join(dir, "out.xlsx")
	out := run(t, dir, nil, "--db", dbPath, "journal", "export", "main", "--xlsx", xlsx)
	if !contains(out, "1 trade checks, 1 snapshots") {
		t.Fatalf("unexpected export summary:\n%s", out)
	}
	if _, err := os.Stat(xlsx); err != nil {
		t.Fatal(err)
	}
}
