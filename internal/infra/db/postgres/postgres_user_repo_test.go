//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"telegram-media-downloader/internal/domain"
	"telegram-media-downloader/internal/domain/model"
)

func TestUserRepo_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode.")
	}
	repo := NewUserRepo(testPool)
	ctx := context.Background()

	t.Run("save and find round-trip", func(t *testing.T) {
		cleanup(t)
		u, err := model.NewUser(42, "alice", "Alice")
		if err != nil {
			t.Fatal(err)
		}
		if err := repo.Save(ctx, nil, u); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		found, err := repo.FindByID(ctx, nil, 42)
		if err != nil {
			t.Fatalf("FindByID failed: %v", err)
		}
		if found.Username != "alice" || found.FirstName != "Alice" {
			t.Errorf("unexpected names: %q %q", found.Username, found.FirstName)
		}
		if found.Priority.Tier != model.PriorityNone {
			t.Errorf("new user should carry no priority, got tier %d", found.Priority.Tier)
		}

		if _, err := repo.FindByID(ctx, nil, 999); err != domain.ErrNotFound {
			t.Errorf("expected ErrNotFound for unknown user, got %v", err)
		}
	})

	t.Run("upsert does not clobber names with blanks", func(t *testing.T) {
		cleanup(t)
		u, _ := model.NewUser(42, "alice", "Alice")
		repo.Save(ctx, nil, u)

		// Telegram updates sometimes arrive without a username.
		bare, _ := model.NewUser(42, "", "")
		if err := repo.Save(ctx, nil, bare); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}

		found, _ := repo.FindByID(ctx, nil, 42)
		if found.Username != "alice" || found.FirstName != "Alice" {
			t.Errorf("blank upsert clobbered names: %q %q", found.Username, found.FirstName)
		}

		renamed, _ := model.NewUser(42, "alice2", "Alice")
		repo.Save(ctx, nil, renamed)
		found, _ = repo.FindByID(ctx, nil, 42)
		if found.Username != "alice2" {
			t.Errorf("rename not applied: %q", found.Username)
		}
	})

	t.Run("priority variants round-trip", func(t *testing.T) {
		cleanup(t)
		u, _ := model.NewUser(42, "alice", "Alice")
		repo.Save(ctx, nil, u)

		until := time.Now().Add(72 * time.Hour).Truncate(time.Second)
		if err := repo.SetPriority(ctx, nil, 42, model.PriorityUntilTime(until)); err != nil {
			t.Fatalf("SetPriority failed: %v", err)
		}
		found, _ := repo.FindByID(ctx, nil, 42)
		if found.Priority.Tier != model.PriorityUntil {
			t.Fatalf("expected time-bounded tier, got %d", found.Priority.Tier)
		}
		if !found.Priority.Until.Equal(until) {
			t.Errorf("until drifted: want %v got %v", until, found.Priority.Until)
		}

		if err := repo.SetPriority(ctx, nil, 42, model.UnboundedPriority()); err != nil {
			t.Fatal(err)
		}
		found, _ = repo.FindByID(ctx, nil, 42)
		if !found.Priority.Unbounded() {
			t.Error("expected unbounded priority")
		}

		if err := repo.SetPriority(ctx, nil, 42, model.NoPriority()); err != nil {
			t.Fatal(err)
		}
		found, _ = repo.FindByID(ctx, nil, 42)
		if found.Priority.Tier != model.PriorityNone {
			t.Error("expected priority revoked")
		}
	})

	t.Run("download stats accumulate", func(t *testing.T) {
		cleanup(t)
		u, _ := model.NewUser(42, "alice", "Alice")
		repo.Save(ctx, nil, u)

		repo.AddDownloadStats(ctx, nil, 42, 1000)
		repo.AddDownloadStats(ctx, nil, 42, 500)

		found, _ := repo.FindByID(ctx, nil, 42)
		if found.TotalDownloads != 2 || found.TotalBytes != 1500 {
			t.Errorf("stats = %d downloads / %d bytes", found.TotalDownloads, found.TotalBytes)
		}
	})

	t.Run("list with priority orders unbounded first", func(t *testing.T) {
		cleanup(t)
		for id, p := range map[int64]model.Priority{
			1: model.NoPriority(),
			2: model.PriorityUntilTime(time.Now().Add(time.Hour)),
			3: model.UnboundedPriority(),
		} {
			u, _ := model.NewUser(id, "u", "U")
			repo.Save(ctx, nil, u)
			if p.Tier != model.PriorityNone {
				repo.SetPriority(ctx, nil, id, p)
			}
		}

		users, err := repo.ListWithPriority(ctx, nil)
		if err != nil {
			t.Fatalf("ListWithPriority failed: %v", err)
		}
		if len(users) != 2 {
			t.Fatalf("expected 2 priority users, got %d", len(users))
		}
		if users[0].ID != 3 || users[1].ID != 2 {
			t.Errorf("unexpected order: %d, %d", users[0].ID, users[1].ID)
		}

		n, err := repo.CountUsers(ctx, nil)
		if err != nil || n != 3 {
			t.Errorf("CountUsers = %d, %v", n, err)
		}
	})
}
