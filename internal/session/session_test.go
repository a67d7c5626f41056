package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/forPelevin/hlshorts/internal/progress"
	"github.com/forPelevin/hlshorts/internal/types"
)

func stores(t *testing.T) map[string]func() Store {
	t.Helper()
	return map[string]func() Store{
		"memory": func() Store { return NewMemoryStore() },
		"sqlite": func() Store {
			s, err := OpenSQLite(filepath.Join(t.TempDir(), "db", "sessions.db"))
			if err != nil {
				t.Fatalf("OpenSQLite: %v", err)
			}
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func TestRegistry_Lifecycle(t *testing.T) {
	for name, open := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			reg := NewRegistry(open(), t.TempDir())

			s, err := reg.Create(ctx, "My Talk.MP4", strings.NewReader("video-bytes"))
			if err != nil {
				t.Fatalf("Create: %v", err)
			}
			if s.Status != StatusUploaded || s.Filename != "My Talk.MP4" || filepath.Ext(s.InputPath) != ".mp4" {
				t.Fatalf("unexpected session: %+v", s)
			}
			if b, err := os.ReadFile(s.InputPath); err != nil || string(b) != "video-bytes" {
				t.Fatalf("upload not saved: %q %v", b, err)
			}

			if err := reg.Progress(ctx, s.ID, 10, "x"); err == nil {
				t.Fatalf("progress without a claimed run must fail")
			}

			if _, err := reg.Claim(ctx, s.ID); err != nil {
				t.Fatalf("Claim: %v", err)
			}
			if _, err := reg.Claim(ctx, s.ID); !errors.Is(err, ErrBusy) {
				t.Fatalf("second claim = %v, want ErrBusy", err)
			}
			if err := reg.Remove(ctx, s.ID); !errors.Is(err, ErrBusy) {
				t.Fatalf("remove while processing = %v, want ErrBusy", err)
			}

			reg.Observer(s.ID).Notify(ctx, progress.Event{Percent: 60, Message: "analyzing"})
			got, err := reg.Get(ctx, s.ID)
			if err != nil || got.Status != StatusProcessing || got.Progress != 60 || got.Message != "analyzing" {
				t.Fatalf("unexpected progress state: %+v %v", got, err)
			}

			res := types.GenerationResult{
				Success:       true,
				ShortsCreated: 1,
				OutputFiles:   []types.OutputArtifact{{Filename: "short_01_a.mp4", Path: filepath.Join(s.OutputDir, "short_01_a.mp4"), Size: 3}},
				Errors:        []string{"Error creating short 2: boom"},
			}
			if err := reg.Complete(ctx, s.ID, res); err != nil {
				t.Fatalf("Complete: %v", err)
			}
			got, _ = reg.Get(ctx, s.ID)
			if got.Status != StatusCompleted || got.Progress != 100 || got.Result == nil || got.Result.ShortsCreated != 1 {
				t.Fatalf("unexpected completed state: %+v", got)
			}
			if a, ok := got.Artifact("short_01_a.mp4"); !ok || a.Size != 3 {
				t.Fatalf("artifact lookup failed: %+v", a)
			}
			if _, ok := got.Artifact("../etc/passwd"); ok {
				t.Fatalf("unknown artifact must not resolve")
			}

			// A finished session may be generated again.
			if _, err := reg.Claim(ctx, s.ID); err != nil {
				t.Fatalf("re-claim: %v", err)
			}
			if err := reg.Fail(ctx, s.ID, "Fatal error: boom"); err != nil {
				t.Fatalf("Fail: %v", err)
			}
			got, _ = reg.Get(ctx, s.ID)
			if got.Status != StatusError || got.Error != "Fatal error: boom" || got.Result != nil {
				t.Fatalf("unexpected error state: %+v", got)
			}

			if err := reg.Remove(ctx, s.ID); err != nil {
				t.Fatalf("Remove: %v", err)
			}
			if _, err := os.Stat(reg.Dir(s.ID)); !os.IsNotExist(err) {
				t.Fatalf("session dir must be deleted")
			}
			if _, err := reg.Get(ctx, s.ID); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Get after remove = %v", err)
			}
		})
	}
}

func TestRegistry_UnknownSession(t *testing.T) {
	t.Parallel()

	reg := NewRegistry(NewMemoryStore(), t.TempDir())
	if _, err := reg.Claim(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Claim = %v, want ErrNotFound", err)
	}
	if err := reg.Remove(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Remove = %v, want ErrNotFound", err)
	}
}

func TestRegistry_RunLockAcrossRegistries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	root := t.TempDir()
	a := NewRegistry(NewMemoryStore(), root)
	s, err := a.Create(ctx, "a.mp4", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// A second registry with its own view of the same directory.
	otherStore := NewMemoryStore()
	if err := otherStore.Put(ctx, s); err != nil {
		t.Fatalf("Put: %v", err)
	}
	b := NewRegistry(otherStore, root)

	if _, err := a.Claim(ctx, s.ID); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if _, err := b.Claim(ctx, s.ID); !errors.Is(err, ErrBusy) {
		t.Fatalf("claim through second registry = %v, want ErrBusy", err)
	}
	if err := a.Complete(ctx, s.ID, types.GenerationResult{Success: true}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if _, err := b.Claim(ctx, s.ID); err != nil {
		t.Fatalf("claim after release: %v", err)
	}
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sessions.db")
	st, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	reg := NewRegistry(st, t.TempDir())
	s, err := reg.Create(ctx, "a.webm", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := reg.Claim(ctx, s.ID); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	st2, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = st2.Close() })
	reg2 := NewRegistry(st2, t.TempDir())

	n, err := reg2.Recover(ctx)
	if err != nil || n != 1 {
		t.Fatalf("Recover = %d, %v", n, err)
	}
	got, err := reg2.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusError || got.Filename != "a.webm" || !got.CreatedAt.Equal(s.CreatedAt) {
		t.Fatalf("unexpected recovered session: %+v (created %v)", got, s.CreatedAt)
	}
	list, err := st2.List(ctx)
	if err != nil || len(list) != 1 {
		t.Fatalf("List = %v, %v", list, err)
	}
}
