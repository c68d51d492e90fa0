package execution

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	clierr "github.com/ggonzalez94/volume-bot/internal/errors"
	"github.com/ggonzalez94/volume-bot/internal/id"
	"github.com/ggonzalez94/volume-bot/internal/model"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	dir := t.TempDir()
	j, err := OpenJournal(filepath.Join(dir, "cycles.db"), filepath.Join(dir, "cycles.lock"))
	if err != nil {
		t.Fatalf("OpenJournal failed: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func testReport(cycleID string, userID int64, finished time.Time) model.CycleReport {
	return model.CycleReport{
		ID:              cycleID,
		UserID:          userID,
		Network:         id.BSC,
		TokenAddress:    testToken,
		Side:            model.SideBuy,
		Speed:           model.SpeedSlow,
		TotalOperations: 4,
		Rounds:          1,
		Sent:            4,
		Succeeded:       3,
		Failed:          1,
		Operations: []model.Operation{
			{Round: 1, Wallet: "0xabc", Side: model.SideBuy, Status: model.OperationSucceeded, TxID: "0x1"},
		},
		StartedAt:  finished.Add(-time.Minute),
		FinishedAt: finished,
	}
}

func TestJournalSaveGetList(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0).UTC()

	if err := j.Save(ctx, testReport("c1", 7, base)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := j.Save(ctx, testReport("c2", 7, base.Add(time.Minute))); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if err := j.Save(ctx, testReport("c3", 9, base.Add(2*time.Minute))); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := j.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Succeeded != 3 || len(got.Operations) != 1 || got.Operations[0].TxID != "0x1" {
		t.Fatalf("unexpected report %+v", got)
	}

	mine, err := j.List(ctx, 7, 10)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(mine) != 2 || mine[0].ID != "c2" || mine[1].ID != "c1" {
		t.Fatalf("expected newest first for user 7, got %+v", mine)
	}
	all, err := j.List(ctx, 0, 2)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 2 || all[0].ID != "c3" {
		t.Fatalf("expected limited global list, got %d entries", len(all))
	}
}

func TestJournalSaveUpserts(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()
	report := testReport("c1", 7, time.Unix(1_700_000_000, 0))
	if err := j.Save(ctx, report); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	report.Interrupted = true
	if err := j.Save(ctx, report); err != nil {
		t.Fatalf("Save update failed: %v", err)
	}
	got, err := j.Get(ctx, "c1")
	if err != nil || !got.Interrupted {
		t.Fatalf("expected updated report, got %+v err=%v", got, err)
	}
	list, _ := j.List(ctx, 7, 10)
	if len(list) != 1 {
		t.Fatalf("expected one row after upsert, got %d", len(list))
	}
}

func TestJournalErrors(t *testing.T) {
	j := openTestJournal(t)
	if _, err := j.Get(context.Background(), "missing"); !clierr.Is(err, clierr.CodeUsage) {
		t.Fatalf("expected not-found usage error, got %v", err)
	}
	if err := j.Save(context.Background(), model.CycleReport{}); err == nil {
		t.Fatal("expected missing id error")
	}
}
