package jobs_test

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"go.uber.org/goleak"

	dbfs "github.com/gather-app/gather/db"
	dbpkg "github.com/gather-app/gather/internal/db"
	"github.com/gather-app/gather/internal/jobs"
)

func TestMain(m *testing.M) {
	// verify no goroutine leaks across tests in this package
	defer goleak.VerifyTestMain(m)
	os.Exit(m.Run())
}

func setupQueue(t *testing.T) (*jobs.Repository, *dbpkg.DB, func()) {
	t.Helper()
	ctx := context.Background()
	d, err := dbpkg.New(ctx, "file::memory:?cache=shared")
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := dbpkg.Migrate(ctx, d, dbfs.Migrations, embed.FS{}); err != nil {
		d.Close()
		t.Fatalf("failed to migrate: %v", err)
	}

	// the shared in-memory db survives across tests in this package
	for _, table := range []string{"jobs", "dead_letter_jobs"} {
		if _, err := d.Exec(ctx, "DELETE FROM "+table); err != nil {
			d.Close()
			t.Fatalf("failed to clear %s: %v", table, err)
		}
	}
	return jobs.NewRepository(d), d, func() { d.Close() }
}

// waitUntil polls cond until it returns true or the timeout passes
func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestBackoffDuration(t *testing.T) {
	cases := []struct {
		name    string
		attempt int
		want    time.Duration
	}{
		{"Zero", 0, time.Second},
		{"Negative", -3, time.Second},
		{"First", 1, 2 * time.Second},
		{"Third", 3, 8 * time.Second},
		{"Capped", 20, 5 * time.Minute},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := jobs.BackoffDuration(c.attempt); got != c.want {
				t.Fatalf("want %v got %v", c.want, got)
			}
		})
	}
}

func TestEnqueueDefaultsAndFetch(t *testing.T) {
	repo, _, cleanup := setupQueue(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := repo.Enqueue(ctx, nil); err == nil {
		t.Fatalf("expected error for nil job")
	}
	if _, err := repo.Enqueue(ctx, &jobs.Job{}); err == nil {
		t.Fatalf("expected error for missing type")
	}

	id, err := repo.Enqueue(ctx, &jobs.Job{Type: "email", Payload: json.RawMessage(`{"to":"a@b.c"}`)})
	if err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}
	if id == 0 {
		t.Fatalf("expected non-zero job id")
	}

	got, err := repo.FetchNext(ctx)
	if err != nil {
		t.Fatalf("FetchNext error: %v", err)
	}
	if got == nil || got.ID != id {
		t.Fatalf("expected job %d, got %#v", id, got)
	}
	if got.Status != "running" {
		t.Fatalf("fetched job should be claimed, status = %q", got.Status)
	}
	if got.MaxAttempts != 5 {
		t.Fatalf("expected default max attempts 5, got %d", got.MaxAttempts)
	}
	if string(got.Payload) != `{"to":"a@b.c"}` {
		t.Fatalf("payload round-trip broken: %s", got.Payload)
	}

	// the claimed job must not be handed out again
	again, err := repo.FetchNext(ctx)
	if err != nil {
		t.Fatalf("FetchNext error: %v", err)
	}
	if again != nil {
		t.Fatalf("claimed job fetched twice: %#v", again)
	}
}

func TestFetchNextRespectsPriorityAndSchedule(t *testing.T) {
	repo, _, cleanup := setupQueue(t)
	defer cleanup()
	ctx := context.Background()

	lowID, err := repo.Enqueue(ctx, &jobs.Job{Type: "email", Priority: 5})
	if err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}
	highID, err := repo.Enqueue(ctx, &jobs.Job{Type: "email", Priority: 0})
	if err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}
	if _, err := repo.Enqueue(ctx, &jobs.Job{Type: "email", ScheduledAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}

	first, err := repo.FetchNext(ctx)
	if err != nil {
		t.Fatalf("FetchNext error: %v", err)
	}
	if first == nil || first.ID != highID {
		t.Fatalf("expected priority 0 job %d first, got %#v", highID, first)
	}

	second, err := repo.FetchNext(ctx)
	if err != nil {
		t.Fatalf("FetchNext error: %v", err)
	}
	if second == nil || second.ID != lowID {
		t.Fatalf("expected priority 5 job %d second, got %#v", lowID, second)
	}

	// the future job is the only one left and is not due yet
	third, err := repo.FetchNext(ctx)
	if err != nil {
		t.Fatalf("FetchNext error: %v", err)
	}
	if third != nil {
		t.Fatalf("future job fetched early: %#v", third)
	}
}

func TestWorkerRunsJob(t *testing.T) {
	repo, d, cleanup := setupQueue(t)
	defer cleanup()
	ctx := context.Background()

	handled := make(chan string, 1)
	handlers := map[string]jobs.Handler{
		"greet": func(ctx context.Context, j *jobs.Job) error {
			var pl map[string]string
			if err := json.Unmarshal(j.Payload, &pl); err != nil {
				return err
			}
			handled <- pl["name"]
			return nil
		},
	}
	pool := jobs.NewWorkerPool(repo, handlers, nil, 2, 10*time.Millisecond)
	pool.Start(ctx)
	defer pool.Stop()

	id, err := pool.Enqueue(ctx, "greet", map[string]string{"name": "ada"}, 0, 3)
	if err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}

	select {
	case name := <-handled:
		if name != "ada" {
			t.Fatalf("handler saw wrong payload: %q", name)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("handler was not called")
	}

	waitUntil(t, 3*time.Second, func() bool {
		var status string
		if err := d.QueryRow(ctx, `SELECT status FROM jobs WHERE id = ?`, id).Scan(&status); err != nil {
			return false
		}
		return status == "done"
	})
}

func TestWorkerSchedulesRetryWithBackoff(t *testing.T) {
	repo, d, cleanup := setupQueue(t)
	defer cleanup()
	ctx := context.Background()
	start := time.Now().UnixMilli()

	handlers := map[string]jobs.Handler{
		"flaky": func(ctx context.Context, j *jobs.Job) error {
			return errors.New("downstream unavailable")
		},
	}
	pool := jobs.NewWorkerPool(repo, handlers, nil, 1, 10*time.Millisecond)
	pool.Start(ctx)
	defer pool.Stop()

	id, err := pool.Enqueue(ctx, "flaky", nil, 0, 3)
	if err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}

	var attempts int
	var nextTry, lastError string
	waitUntil(t, 3*time.Second, func() bool {
		var status string
		row := d.QueryRow(ctx, `SELECT status, attempts, COALESCE(next_try_at, ''), COALESCE(last_error, '') FROM jobs WHERE id = ?`, id)
		if err := row.Scan(&status, &attempts, &nextTry, &lastError); err != nil {
			return false
		}
		return status == "retry"
	})
	if attempts != 1 {
		t.Fatalf("want 1 attempt got %d", attempts)
	}
	if lastError != "downstream unavailable" {
		t.Fatalf("last_error not recorded: %q", lastError)
	}

	var nextTryMillis int64
	if _, err := fmt.Sscan(nextTry, &nextTryMillis); err != nil {
		t.Fatalf("next_try_at not set: %q", nextTry)
	}
	if nextTryMillis <= start {
		t.Fatalf("next_try_at %d should be after enqueue time %d", nextTryMillis, start)
	}
}

func TestWorkerMovesExhaustedJobToDeadLetter(t *testing.T) {
	repo, d, cleanup := setupQueue(t)
	defer cleanup()
	ctx := context.Background()

	handlers := map[string]jobs.Handler{
		"doomed": func(ctx context.Context, j *jobs.Job) error {
			return errors.New("boom")
		},
	}
	pool := jobs.NewWorkerPool(repo, handlers, nil, 1, 10*time.Millisecond)
	pool.Start(ctx)
	defer pool.Stop()

	id, err := pool.Enqueue(ctx, "doomed", nil, 0, 1)
	if err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}

	var attempts int
	var lastError string
	waitUntil(t, 3*time.Second, func() bool {
		row := d.QueryRow(ctx, `SELECT attempts, COALESCE(last_error, '') FROM dead_letter_jobs WHERE job_id = ?`, id)
		return row.Scan(&attempts, &lastError) == nil
	})
	if attempts != 1 || lastError != "boom" {
		t.Fatalf("dead letter row wrong: attempts=%d last_error=%q", attempts, lastError)
	}

	var left int
	if err := d.QueryRow(ctx, `SELECT COUNT(*) FROM jobs WHERE id = ?`, id).Scan(&left); err != nil {
		t.Fatalf("count jobs: %v", err)
	}
	if left != 0 {
		t.Fatalf("dead-lettered job still in jobs table")
	}
}

func TestWorkerDeadLettersUnknownType(t *testing.T) {
	repo, d, cleanup := setupQueue(t)
	defer cleanup()
	ctx := context.Background()

	pool := jobs.NewWorkerPool(repo, map[string]jobs.Handler{}, nil, 1, 10*time.Millisecond)
	pool.Start(ctx)
	defer pool.Stop()

	id, err := pool.Enqueue(ctx, "mystery", nil, 0, 3)
	if err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}

	var lastError string
	waitUntil(t, 3*time.Second, func() bool {
		row := d.QueryRow(ctx, `SELECT COALESCE(last_error, '') FROM dead_letter_jobs WHERE job_id = ?`, id)
		return row.Scan(&lastError) == nil
	})
	if lastError != "no handler for job type" {
		t.Fatalf("unexpected dead letter reason: %q", lastError)
	}
}
