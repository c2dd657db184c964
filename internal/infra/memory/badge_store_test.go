package memory

import (
	"context"
	"errors"
	"testing"

	"learnpath-service/internal/domain"
)

func TestBadgeStoreGrantRevokeRegrant(t *testing.T) {
	store := NewBadgeStore()
	ctx := context.Background()
	award := domain.BadgeAward{ID: "a1", StudentID: "stu", BadgeID: "good-work"}

	ok, err := store.GrantIfAbsent(ctx, award)
	if err != nil || !ok {
		t.Fatalf("first grant: ok=%v err=%v", ok, err)
	}
	award.ID = "a2"
	if ok, _ := store.GrantIfAbsent(ctx, award); ok {
		t.Fatalf("expected duplicate grant to be skipped")
	}

	if err := store.RevokeAward(ctx, "stu", "good-work"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := store.RevokeAward(ctx, "stu", "good-work"); !errors.Is(err, domain.ErrAwardNotFound) {
		t.Fatalf("expected award not found, got %v", err)
	}

	award.ID = "a3"
	if ok, _ := store.GrantIfAbsent(ctx, award); !ok {
		t.Fatalf("expected regrant after revoke")
	}
	awards, _ := store.ListAwards(ctx, "stu")
	if len(awards) != 2 {
		t.Fatalf("expected 2 award rows, got %d", len(awards))
	}
}
