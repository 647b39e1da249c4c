//go:build !integration

package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"telegram-media-downloader/internal/domain"
	"telegram-media-downloader/internal/domain/model"
)

func newPriorityFixture(t *testing.T) (*PriorityUseCase, *memUserRepo, *memPurchaseRepo) {
	t.Helper()
	users := newMemUserRepo()
	purchases := newMemPurchaseRepo()
	uc := NewPriorityUseCase(purchases, users, &memTxManager{}, 30, 2.0, testLogger())
	return uc, users, purchases
}

func seedUser(t *testing.T, users *memUserRepo, id int64) *model.User {
	t.Helper()
	u, err := model.NewUser(id, "u", "")
	if err != nil {
		t.Fatal(err)
	}
	if err := users.Save(context.Background(), nil, u); err != nil {
		t.Fatal(err)
	}
	return u
}

func TestPriorityUseCase_Decide(t *testing.T) {
	ctx := context.Background()

	t.Run("approval grants a 30 day window and confirms the purchase", func(t *testing.T) {
		uc, users, _ := newPriorityFixture(t)
		seedUser(t, users, 100)

		p, err := uc.RequestPurchase(ctx, 100)
		if err != nil {
			t.Fatalf("RequestPurchase failed: %v", err)
		}

		decided, err := uc.Decide(ctx, p.ID, true)
		if err != nil {
			t.Fatalf("Decide failed: %v", err)
		}
		if decided.Status != model.PurchaseStatusConfirmed {
			t.Errorf("expected confirmed, got %s", decided.Status)
		}

		u, _ := users.FindByID(ctx, nil, 100)
		if u.Priority.Tier != model.PriorityUntil {
			t.Fatalf("expected a bounded priority window, got tier %d", u.Priority.Tier)
		}
		want := time.Now().Add(30 * 24 * time.Hour)
		if diff := u.Priority.Until.Sub(want); diff < -time.Minute || diff > time.Minute {
			t.Errorf("expected expiry near %v, got %v", want, u.Priority.Until)
		}
	})

	t.Run("rejection leaves the user without priority", func(t *testing.T) {
		uc, users, _ := newPriorityFixture(t)
		seedUser(t, users, 100)

		p, _ := uc.RequestPurchase(ctx, 100)
		decided, err := uc.Decide(ctx, p.ID, false)
		if err != nil {
			t.Fatalf("Decide failed: %v", err)
		}
		if decided.Status != model.PurchaseStatusRejected {
			t.Errorf("expected rejected, got %s", decided.Status)
		}
		u, _ := users.FindByID(ctx, nil, 100)
		if u.Priority.Tier != model.PriorityNone {
			t.Errorf("rejection must not change priority, got tier %d", u.Priority.Tier)
		}
	})

	t.Run("a purchase resolves exactly once", func(t *testing.T) {
		uc, users, _ := newPriorityFixture(t)
		seedUser(t, users, 100)

		p, _ := uc.RequestPurchase(ctx, 100)
		if _, err := uc.Decide(ctx, p.ID, true); err != nil {
			t.Fatalf("first Decide failed: %v", err)
		}
		if _, err := uc.Decide(ctx, p.ID, false); !errors.Is(err, domain.ErrAlreadyResolved) {
			t.Fatalf("expected ErrAlreadyResolved on second decision, got %v", err)
		}

		// The first decision stands.
		u, _ := users.FindByID(ctx, nil, 100)
		if u.Priority.Tier != model.PriorityUntil {
			t.Error("approved window must survive the rejected double-tap")
		}
	})

	t.Run("approval stacks on a live window", func(t *testing.T) {
		uc, users, _ := newPriorityFixture(t)
		u := seedUser(t, users, 100)
		remaining := 10 * 24 * time.Hour
		u.Priority = model.PriorityUntilTime(time.Now().Add(remaining))
		users.Save(ctx, nil, u)

		p, _ := uc.RequestPurchase(ctx, 100)
		if _, err := uc.Decide(ctx, p.ID, true); err != nil {
			t.Fatalf("Decide failed: %v", err)
		}

		got, _ := users.FindByID(ctx, nil, 100)
		want := time.Now().Add(remaining + 30*24*time.Hour)
		if diff := got.Priority.Until.Sub(want); diff < -time.Minute || diff > time.Minute {
			t.Errorf("expected stacked expiry near %v, got %v", want, got.Priority.Until)
		}
	})

	t.Run("approval keeps an unbounded user unbounded", func(t *testing.T) {
		uc, users, _ := newPriorityFixture(t)
		u := seedUser(t, users, 100)
		u.Priority = model.UnboundedPriority()
		users.Save(ctx, nil, u)

		p, _ := uc.RequestPurchase(ctx, 100)
		if _, err := uc.Decide(ctx, p.ID, true); err != nil {
			t.Fatalf("Decide failed: %v", err)
		}
		got, _ := users.FindByID(ctx, nil, 100)
		if !got.Priority.Unbounded() {
			t.Error("unbounded priority must not be demoted by a purchase")
		}
	})
}

func TestPriorityUseCase_Grant(t *testing.T) {
	ctx := context.Background()

	t.Run("negative days grant the unbounded variant", func(t *testing.T) {
		uc, users, _ := newPriorityFixture(t)
		seedUser(t, users, 100)

		p, err := uc.Grant(ctx, 100, -1)
		if err != nil {
			t.Fatalf("Grant failed: %v", err)
		}
		if !p.Unbounded() {
			t.Error("expected unbounded priority")
		}
	})

	t.Run("zero days revoke", func(t *testing.T) {
		uc, users, _ := newPriorityFixture(t)
		u := seedUser(t, users, 100)
		u.Priority = model.UnboundedPriority()
		users.Save(ctx, nil, u)

		if _, err := uc.Grant(ctx, 100, 0); err != nil {
			t.Fatalf("Grant failed: %v", err)
		}
		got, _ := users.FindByID(ctx, nil, 100)
		if got.Priority.Tier != model.PriorityNone {
			t.Error("expected priority revoked")
		}
	})

	t.Run("positive days set a window from now", func(t *testing.T) {
		uc, users, _ := newPriorityFixture(t)
		seedUser(t, users, 100)

		p, err := uc.Grant(ctx, 100, 7)
		if err != nil {
			t.Fatalf("Grant failed: %v", err)
		}
		want := time.Now().Add(7 * 24 * time.Hour)
		if diff := p.Until.Sub(want); diff < -time.Minute || diff > time.Minute {
			t.Errorf("expected expiry near %v, got %v", want, p.Until)
		}
	})

	t.Run("granting an unknown user fails", func(t *testing.T) {
		uc, _, _ := newPriorityFixture(t)
		if _, err := uc.Grant(ctx, 999, 7); !errors.Is(err, domain.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}
