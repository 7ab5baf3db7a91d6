package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/miluhq/milu/internal/model/message"
)

func strPtr(s string) *string { return &s }

func TestCreateAssignsUniqueIDs(t *testing.T) {
	s := New()
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		msg, err := s.Create(ctx, message.Message{Role: message.RoleSystem, Content: strPtr("hi")})
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		if msg.ID == "" {
			t.Fatal("expected an assigned id")
		}
		if seen[msg.ID] {
			t.Fatalf("duplicate id %s", msg.ID)
		}
		seen[msg.ID] = true
	}
}

func TestCreateWithoutRole(t *testing.T) {
	s := New()

	_, err := s.Create(context.Background(), message.Message{Content: strPtr("hi")})
	if !errors.Is(err, message.ErrConstraint) {
		t.Fatalf("expected constraint violation, got %v", err)
	}
}

func TestCreateWithUnknownParent(t *testing.T) {
	s := New()

	_, err := s.Create(context.Background(), message.Message{Role: message.RoleUser, ParentID: strPtr("missing")})
	if !errors.Is(err, message.ErrConstraint) {
		t.Fatalf("expected constraint violation, got %v", err)
	}
}

func TestCreateWithDuplicateID(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.Create(ctx, message.Message{ID: "fixed", Role: message.RoleSystem}); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	_, err := s.Create(ctx, message.Message{ID: "fixed", Role: message.RoleSystem})
	if !errors.Is(err, message.ErrConstraint) {
		t.Fatalf("expected constraint violation, got %v", err)
	}
}

func TestCreateGetRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	created, err := s.Create(ctx, message.Message{
		Role:       message.RoleUser,
		Content:    strPtr("hello"),
		ExternalID: strPtr("ext-1"),
	})
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Role != message.RoleUser {
		t.Fatalf("expected role user, got %q", got.Role)
	}
	if got.Content == nil || *got.Content != "hello" {
		t.Fatalf("content mismatch: %v", got.Content)
	}
	if got.ExternalID == nil || *got.ExternalID != "ext-1" {
		t.Fatalf("external id mismatch: %v", got.ExternalID)
	}
	if got.ParentID != nil || got.Status != nil {
		t.Fatalf("expected nil parent and status, got %v / %v", got.ParentID, got.Status)
	}
}

func TestGetUnknownID(t *testing.T) {
	s := New()

	_, err := s.Get(context.Background(), "missing")
	if !errors.Is(err, message.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestParentChildScenario(t *testing.T) {
	s := New()
	ctx := context.Background()

	root, err := s.Create(ctx, message.Message{Role: message.RoleUser, Content: strPtr("hi")})
	if err != nil {
		t.Fatalf("create root failed: %v", err)
	}

	children, err := s.ListChildren(ctx, root.ID)
	if err != nil {
		t.Fatalf("list children failed: %v", err)
	}
	if len(children) != 0 {
		t.Fatalf("expected no children yet, got %d", len(children))
	}

	child, err := s.Create(ctx, message.Message{
		Role:     message.RoleAssistant,
		Content:  strPtr("hello"),
		ParentID: &root.ID,
	})
	if err != nil {
		t.Fatalf("create child failed: %v", err)
	}

	children, err = s.ListChildren(ctx, root.ID)
	if err != nil {
		t.Fatalf("list children failed: %v", err)
	}
	if len(children) != 1 || children[0].ID != child.ID {
		t.Fatalf("expected [%s], got %v", child.ID, children)
	}

	got, err := s.Get(ctx, child.ID)
	if err != nil {
		t.Fatalf("get child failed: %v", err)
	}
	if got.ParentID == nil || *got.ParentID != root.ID {
		t.Fatalf("expected parent %s, got %v", root.ID, got.ParentID)
	}
}

func TestListChildrenKeepsInsertionOrder(t *testing.T) {
	s := New()
	ctx := context.Background()

	root, _ := s.Create(ctx, message.Message{Role: message.RoleSystem, Content: strPtr("root")})
	var want []string
	for i := 0; i < 5; i++ {
		child, err := s.Create(ctx, message.Message{Role: message.RoleUser, Content: strPtr("turn"), ParentID: &root.ID})
		if err != nil {
			t.Fatalf("create failed: %v", err)
		}
		want = append(want, child.ID)
	}

	children, err := s.ListChildren(ctx, root.ID)
	if err != nil {
		t.Fatalf("list children failed: %v", err)
	}
	if len(children) != len(want) {
		t.Fatalf("expected %d children, got %d", len(want), len(children))
	}
	for i, child := range children {
		if child.ID != want[i] {
			t.Fatalf("child %d: expected %s, got %s", i, want[i], child.ID)
		}
	}
}

func TestListChildrenUnknownParent(t *testing.T) {
	s := New()

	_, err := s.ListChildren(context.Background(), "missing")
	if !errors.Is(err, message.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListRoots(t *testing.T) {
	s := New()
	ctx := context.Background()

	first, _ := s.Create(ctx, message.Message{Role: message.RoleSystem, Content: strPtr("a")})
	second, _ := s.Create(ctx, message.Message{Role: message.RoleSystem, Content: strPtr("b")})
	if _, err := s.Create(ctx, message.Message{Role: message.RoleUser, Content: strPtr("c"), ParentID: &first.ID}); err != nil {
		t.Fatalf("create child failed: %v", err)
	}

	roots, err := s.ListRoots(ctx)
	if err != nil {
		t.Fatalf("list roots failed: %v", err)
	}
	if len(roots) != 2 || roots[0].ID != first.ID || roots[1].ID != second.ID {
		t.Fatalf("unexpected roots: %v", roots)
	}
}

func TestUpdateMutatesOnlyGivenFields(t *testing.T) {
	s := New()
	ctx := context.Background()

	created, _ := s.Create(ctx, message.Message{Role: message.RoleUser, Content: strPtr("hi")})

	updated, err := s.Update(ctx, created.ID, message.UpdateInput{Status: strPtr("done")})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Status == nil || *updated.Status != "done" {
		t.Fatalf("expected status done, got %v", updated.Status)
	}
	if updated.Content == nil || *updated.Content != "hi" {
		t.Fatalf("content should be untouched, got %v", updated.Content)
	}
	if updated.Role != message.RoleUser {
		t.Fatalf("role should be untouched, got %q", updated.Role)
	}

	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Status == nil || *got.Status != "done" {
		t.Fatalf("status not persisted, got %v", got.Status)
	}
}

func TestUpdateUnknownID(t *testing.T) {
	s := New()

	_, err := s.Update(context.Background(), "missing", message.UpdateInput{Status: strPtr("done")})
	if !errors.Is(err, message.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDeleteLeaf(t *testing.T) {
	s := New()
	ctx := context.Background()

	created, _ := s.Create(ctx, message.Message{Role: message.RoleSystem, Content: strPtr("bye")})
	if err := s.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if _, err := s.Get(ctx, created.ID); !errors.Is(err, message.ErrNotFound) {
		t.Fatalf("expected not found after delete, got %v", err)
	}

	roots, _ := s.ListRoots(ctx)
	if len(roots) != 0 {
		t.Fatalf("expected no roots, got %v", roots)
	}
}

func TestDeleteWithChildrenRejected(t *testing.T) {
	s := New()
	ctx := context.Background()

	root, _ := s.Create(ctx, message.Message{Role: message.RoleSystem, Content: strPtr("root")})
	child, _ := s.Create(ctx, message.Message{Role: message.RoleUser, Content: strPtr("turn"), ParentID: &root.ID})

	if err := s.Delete(ctx, root.ID); !errors.Is(err, message.ErrConstraint) {
		t.Fatalf("expected constraint violation, got %v", err)
	}

	// Removing the child first makes the parent deletable.
	if err := s.Delete(ctx, child.ID); err != nil {
		t.Fatalf("delete child failed: %v", err)
	}
	if err := s.Delete(ctx, root.ID); err != nil {
		t.Fatalf("delete root failed: %v", err)
	}
}
