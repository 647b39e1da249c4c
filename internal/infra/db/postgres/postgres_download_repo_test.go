//go:build integration

package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"telegram-media-downloader/internal/domain/model"
)

func seedTestUser(t *testing.T, id int64, p model.Priority) {
	t.Helper()
	repo := NewUserRepo(testPool)
	ctx := context.Background()
	u, err := model.NewUser(id, "u", "U")
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.Save(ctx, nil, u); err != nil {
		t.Fatalf("failed to seed user %d: %v", id, err)
	}
	if p.Tier != model.PriorityNone {
		if err := repo.SetPriority(ctx, nil, id, p); err != nil {
			t.Fatalf("failed to set priority for %d: %v", id, err)
		}
	}
}

func enqueue(t *testing.T, userID int64, url, quality string) *model.Download {
	t.Helper()
	repo := NewDownloadRepo(testPool)
	d, err := model.NewDownload(userID, url, "", quality)
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.Create(context.Background(), nil, d); err != nil {
		t.Fatalf("failed to enqueue: %v", err)
	}
	return d
}

func TestDownloadRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	repo := NewDownloadRepo(testPool)
	ctx := context.Background()

	t.Run("full lifecycle round-trip", func(t *testing.T) {
		cleanup(t)
		seedTestUser(t, 100, model.NoPriority())
		d := enqueue(t, 100, "https://youtu.be/abc", "720p")

		found, err := repo.FindByID(ctx, nil, d.ID)
		if err != nil {
			t.Fatalf("FindByID failed: %v", err)
		}
		if found.Status != model.DownloadStatusPending {
			t.Errorf("expected pending, got %s", found.Status)
		}

		ok, err := repo.MarkDownloading(ctx, nil, d.ID)
		if err != nil || !ok {
			t.Fatalf("MarkDownloading = %t, %v", ok, err)
		}
		if err := repo.UpdateProgress(ctx, nil, d.ID, 42, 2.5, 60); err != nil {
			t.Fatalf("UpdateProgress failed: %v", err)
		}
		if err := repo.Complete(ctx, nil, d.ID, "/data/100/v.mp4", 12345); err != nil {
			t.Fatalf("Complete failed: %v", err)
		}

		final, err := repo.FindByID(ctx, nil, d.ID)
		if err != nil {
			t.Fatal(err)
		}
		if final.Status != model.DownloadStatusCompleted || final.Progress != 100 {
			t.Errorf("unexpected final state: %s %d%%", final.Status, final.Progress)
		}
		if final.FilePath != "/data/100/v.mp4" || final.FileSizeBytes != 12345 {
			t.Errorf("artifact not recorded: %q %d", final.FilePath, final.FileSizeBytes)
		}
		if final.CompletedAt == nil {
			t.Error("expected completed_at set")
		}
	})

	t.Run("admission is exactly-once under contention", func(t *testing.T) {
		cleanup(t)
		seedTestUser(t, 100, model.NoPriority())
		d := enqueue(t, 100, "https://youtu.be/abc", "720p")

		const racers = 8
		var wg sync.WaitGroup
		wins := make(chan bool, racers)
		for i := 0; i < racers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := repo.MarkDownloading(ctx, nil, d.ID)
				if err != nil {
					t.Error(err)
					return
				}
				wins <- ok
			}()
		}
		wg.Wait()
		close(wins)

		won := 0
		for ok := range wins {
			if ok {
				won++
			}
		}
		if won != 1 {
			t.Fatalf("expected exactly one admission, got %d", won)
		}
	})

	t.Run("pending list follows the owner's live priority", func(t *testing.T) {
		cleanup(t)
		seedTestUser(t, 1, model.NoPriority())
		seedTestUser(t, 2, model.UnboundedPriority())
		seedTestUser(t, 3, model.PriorityUntilTime(time.Now().Add(24*time.Hour)))
		seedTestUser(t, 4, model.PriorityUntilTime(time.Now().Add(-time.Hour))) // expired

		plain := enqueue(t, 1, "https://youtu.be/a", "720p")
		vip := enqueue(t, 2, "https://youtu.be/b", "720p")
		window := enqueue(t, 3, "https://youtu.be/c", "720p")
		expired := enqueue(t, 4, "https://youtu.be/d", "720p")

		pending, err := repo.ListPending(ctx, nil)
		if err != nil {
			t.Fatalf("ListPending failed: %v", err)
		}
		if len(pending) != 4 {
			t.Fatalf("expected 4 pending, got %d", len(pending))
		}
		if pending[0].ID != vip.ID {
			t.Errorf("expected unbounded first, got %s", pending[0].ID)
		}
		if pending[1].ID != window.ID {
			t.Errorf("expected live window second, got %s", pending[1].ID)
		}
		// Expired window ranks with none; FIFO between them.
		rest := []string{pending[2].ID, pending[3].ID}
		if !(rest[0] == plain.ID && rest[1] == expired.ID) {
			t.Errorf("expected FIFO among non-priority, got %v", rest)
		}
	})

	t.Run("priority expiring while queued demotes the job", func(t *testing.T) {
		cleanup(t)
		userRepo := NewUserRepo(testPool)
		seedTestUser(t, 1, model.NoPriority())
		seedTestUser(t, 2, model.PriorityUntilTime(time.Now().Add(24*time.Hour)))

		plain := enqueue(t, 1, "https://youtu.be/a", "720p")
		boosted := enqueue(t, 2, "https://youtu.be/b", "720p")

		pending, _ := repo.ListPending(ctx, nil)
		if pending[0].ID != boosted.ID {
			t.Fatalf("expected boosted job first while priority lives")
		}

		// The window lapses; the very next listing reflects it.
		if err := userRepo.SetPriority(ctx, nil, 2, model.PriorityUntilTime(time.Now().Add(-time.Second))); err != nil {
			t.Fatal(err)
		}
		pending, _ = repo.ListPending(ctx, nil)
		if pending[0].ID != plain.ID {
			t.Errorf("expected FIFO order after expiry, got %s first", pending[0].ID)
		}
	})

	t.Run("count active spans downloading converting sending", func(t *testing.T) {
		cleanup(t)
		seedTestUser(t, 1, model.NoPriority())
		a := enqueue(t, 1, "https://youtu.be/a", "720p")
		b := enqueue(t, 1, "https://youtu.be/b", "720p")
		c := enqueue(t, 1, "https://youtu.be/c", "720p")
		d := enqueue(t, 1, "https://youtu.be/d", "720p")

		repo.SetStatus(ctx, nil, a.ID, model.DownloadStatusDownloading)
		repo.SetStatus(ctx, nil, b.ID, model.DownloadStatusConverting)
		repo.SetStatus(ctx, nil, c.ID, model.DownloadStatusSending)
		_ = d // stays pending

		n, err := repo.CountActive(ctx, nil)
		if err != nil {
			t.Fatal(err)
		}
		if n != 3 {
			t.Fatalf("expected 3 active, got %d", n)
		}
	})

	t.Run("artifact cache lookup returns the newest completed match", func(t *testing.T) {
		cleanup(t)
		seedTestUser(t, 1, model.NoPriority())

		older := enqueue(t, 1, "https://youtu.be/a", "720p")
		repo.Complete(ctx, nil, older.ID, "/data/old.mp4", 1)
		time.Sleep(10 * time.Millisecond)
		newer := enqueue(t, 1, "https://youtu.be/a", "720p")
		repo.Complete(ctx, nil, newer.ID, "/data/new.mp4", 2)

		hit, err := repo.FindCompletedBySource(ctx, nil, "https://youtu.be/a", "720p")
		if err != nil {
			t.Fatalf("FindCompletedBySource failed: %v", err)
		}
		if hit.FilePath != "/data/new.mp4" {
			t.Errorf("expected the newest artifact, got %q", hit.FilePath)
		}

		// Quality distinguishes artifacts.
		if _, err := repo.FindCompletedBySource(ctx, nil, "https://youtu.be/a", "1080p"); err == nil {
			t.Error("expected no hit for a different quality")
		}
	})

	t.Run("failure round-trip records kind and detail", func(t *testing.T) {
		cleanup(t)
		seedTestUser(t, 1, model.NoPriority())
		d := enqueue(t, 1, "https://youtu.be/a", "720p")

		if err := repo.Fail(ctx, nil, d.ID, model.FailureGeoRestricted, "not available in your country"); err != nil {
			t.Fatalf("Fail failed: %v", err)
		}
		got, _ := repo.FindByID(ctx, nil, d.ID)
		if got.Status != model.DownloadStatusFailed || got.FailureKind != model.FailureGeoRestricted {
			t.Errorf("unexpected failure state: %s %s", got.Status, got.FailureKind)
		}
		if got.FailureDetail == "" {
			t.Error("expected the diagnostic detail stored")
		}
	})
}
