package index

import (
	"path/filepath"
	"testing"
	"time"

	agtest "github.com/agavecli/agsync/internal/testing"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "state", "history.db"))
	agtest.AssertNoError(t, err, "open database")
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleRun(id string, started int64) (RunRecord, []RunItem) {
	run := RunRecord{
		ID:         id,
		Command:    "get",
		System:     "test-storage",
		RemoteRoot: "/data",
		LocalRoot:  "/tmp/data",
		Status:     "PARTIAL_FAILURE",
		Succeeded:  2,
		Skipped:    1,
		Failed:     1,
		Bytes:      2048,
		DurationMS: 1500,
		StartedAt:  started,
	}
	items := []RunItem{
		{RunID: id, RemotePath: "/data/a.txt", LocalPath: "/tmp/data/a.txt", Kind: "file", Outcome: "SUCCEEDED", Bytes: 1024},
		{RunID: id, RemotePath: "/data/b.txt", LocalPath: "/tmp/data/b.txt", Kind: "file", Outcome: "SUCCEEDED", Bytes: 1024},
		{RunID: id, RemotePath: "/data/c.txt", LocalPath: "/tmp/data/c.txt", Kind: "file", Outcome: "SKIPPED", Detail: "same size and not older than remote"},
		{RunID: id, RemotePath: "/data/d.txt", LocalPath: "/tmp/data/d.txt", Kind: "file", Outcome: "FAILED", ErrorCode: "NETWORK_ERROR", Detail: "injected failure"},
	}
	return run, items
}

func TestRecordAndGetRun(t *testing.T) {
	db := openTestDB(t)
	ctx := agtest.TestContext()

	run, items := sampleRun("run-1", time.Now().Unix())
	agtest.AssertNoError(t, db.RecordRun(ctx, run, items), "record run")

	got, err := db.GetRun(ctx, "run-1")
	agtest.AssertNoError(t, err, "get run")
	if got.Status != "PARTIAL_FAILURE" || got.Succeeded != 2 || got.Failed != 1 || got.Bytes != 2048 {
		t.Errorf("run = %+v", got)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	db := openTestDB(t)
	ctx := agtest.TestContext()

	base := time.Now().Unix()
	for i, id := range []string{"old", "middle", "new"} {
		run, items := sampleRun(id, base+int64(i))
		agtest.AssertNoError(t, db.RecordRun(ctx, run, items), "record "+id)
	}

	runs, err := db.ListRuns(ctx, 2)
	agtest.AssertNoError(t, err, "list runs")
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}
	if runs[0].ID != "new" || runs[1].ID != "middle" {
		t.Errorf("order = %s, %s", runs[0].ID, runs[1].ID)
	}
}

func TestListItemsFailuresFirst(t *testing.T) {
	db := openTestDB(t)
	ctx := agtest.TestContext()

	run, items := sampleRun("run-1", time.Now().Unix())
	agtest.AssertNoError(t, db.RecordRun(ctx, run, items), "record run")

	got, err := db.ListItems(ctx, "run-1")
	agtest.AssertNoError(t, err, "list items")
	if len(got) != 4 {
		t.Fatalf("items = %d, want 4", len(got))
	}
	if got[0].Outcome != "FAILED" {
		t.Errorf("first item outcome = %s, want FAILED", got[0].Outcome)
	}
	if got[0].ErrorCode != "NETWORK_ERROR" {
		t.Errorf("first item error code = %s", got[0].ErrorCode)
	}
}

func TestPruneKeepsNewestRuns(t *testing.T) {
	db := openTestDB(t)
	ctx := agtest.TestContext()

	base := time.Now().Unix()
	for i := 0; i < 5; i++ {
		run, items := sampleRun(string(rune('a'+i)), base+int64(i))
		agtest.AssertNoError(t, db.RecordRun(ctx, run, items), "record")
	}

	agtest.AssertNoError(t, db.Prune(ctx, 2), "prune")

	runs, err := db.ListRuns(ctx, 10)
	agtest.AssertNoError(t, err, "list runs")
	if len(runs) != 2 {
		t.Fatalf("runs after prune = %d, want 2", len(runs))
	}
	if runs[0].ID != "e" || runs[1].ID != "d" {
		t.Errorf("kept runs = %s, %s", runs[0].ID, runs[1].ID)
	}

	// Items of pruned runs must be gone too
	items, err := db.ListItems(ctx, "a")
	agtest.AssertNoError(t, err, "list pruned items")
	if len(items) != 0 {
		t.Errorf("pruned run still has %d items", len(items))
	}
}
