package application

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"

	"github.com/example/gymflex/internal/persistence"
)

type noteRepoStub struct {
	notes []Note
}

func (r *noteRepoStub) CreateNote(ctx context.Context, note Note) error {
	r.notes = append(r.notes, note)
	return nil
}

func (r *noteRepoStub) ListNotesByAuthor(ctx context.Context, authorID string) ([]Note, error) {
	out := make([]Note, 0)
	for _, n := range r.notes {
		if n.AuthorID == authorID {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *noteRepoStub) DeleteNote(ctx context.Context, id, authorID string) error {
	for i, n := range r.notes {
		if n.ID == id && n.AuthorID == authorID {
			r.notes = append(r.notes[:i], r.notes[i+1:]...)
			return nil
		}
	}
	return persistence.ErrNotFound
}

func TestNoteService(t *testing.T) {
	ctx := context.Background()
	alice := PrincipalFor(memberUser)
	bob := PrincipalFor(otherMember)

	t.Run("notes are private to their author", func(t *testing.T) {
		repo := &noteRepoStub{}
		svc := NewNoteService(repo, sequentialIDs("note"), fixedClock(testNow))

		note, err := svc.CreateNote(ctx, alice, "  leg day  ")
		if err != nil {
			t.Fatalf("CreateNote returned error: %v", err)
		}
		if note.Title != "leg day" || note.AuthorID != memberUser.ID || !note.CreatedAt.Equal(testNow) {
			t.Fatalf("unexpected note %+v", note)
		}

		mine, _ := svc.ListNotes(ctx, alice)
		theirs, _ := svc.ListNotes(ctx, bob)
		if len(mine) != 1 || len(theirs) != 0 {
			t.Fatalf("expected 1 and 0 notes, got %d and %d", len(mine), len(theirs))
		}

		if err := svc.DeleteNote(ctx, bob, note.ID); !errors.Is(err, ErrNoteNotFound) {
			t.Fatalf("expected ErrNoteNotFound for foreign note, got %v", err)
		}
		if err := svc.DeleteNote(ctx, alice, note.ID); err != nil {
			t.Fatalf("DeleteNote returned error: %v", err)
		}
		if len(repo.notes) != 0 {
			t.Fatalf("expected note to be deleted")
		}
	})

	t.Run("validates titles", func(t *testing.T) {
		svc := NewNoteService(&noteRepoStub{}, nil, nil)

		for _, title := range []string{"   ", strings.Repeat("x", 101)} {
			_, err := svc.CreateNote(ctx, alice, title)
			var vErr *ValidationError
			if !errors.As(err, &vErr) || vErr.FieldErrors["title"] == "" {
				t.Fatalf("expected title error for %q, got %v", title, err)
			}
		}
		if _, err := svc.CreateNote(ctx, alice, strings.Repeat("x", 100)); err != nil {
			t.Fatalf("expected 100 character title to be accepted, got %v", err)
		}
	})

	t.Run("requires authentication", func(t *testing.T) {
		svc := NewNoteService(&noteRepoStub{}, nil, nil)

		if _, err := svc.ListNotes(ctx, Principal{}); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
		if _, err := svc.CreateNote(ctx, Principal{}, "x"); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("expected ErrUnauthorized, got %v", err)
		}
	})
}
