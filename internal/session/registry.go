package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"github.com/forPelevin/hlshorts/internal/progress"
	"github.com/forPelevin/hlshorts/internal/types"
)

const lockFile = ".run.lock"

// Registry owns the session lifecycle: uploaded, then processing under a
// single owner, then completed or error. Only the owner may report progress
// or finish a run.
type Registry struct {
	store Store
	root  string
	now   func() time.Time

	mu    sync.Mutex
	locks map[string]*flock.Flock
}

func NewRegistry(store Store, root string) *Registry {
	return &Registry{
		store: store,
		root:  root,
		now:   func() time.Time { return time.Now().UTC() },
		locks: map[string]*flock.Flock{},
	}
}

// Dir is the directory holding a session's upload and outputs.
func (r *Registry) Dir(id string) string { return filepath.Join(r.root, id) }

// Create stores an uploaded video under a new session.
func (r *Registry) Create(ctx context.Context, filename string, src io.Reader) (Session, error) {
	id := uuid.NewString()
	dir := r.Dir(id)
	if err := os.MkdirAll(filepath.Join(dir, "output"), 0o755); err != nil {
		return Session{}, fmt.Errorf("create session dir: %w", err)
	}

	input := filepath.Join(dir, "input"+strings.ToLower(filepath.Ext(filename)))
	if err := writeFile(input, src); err != nil {
		_ = os.RemoveAll(dir)
		return Session{}, err
	}

	now := r.now()
	s := Session{
		ID:        id,
		Filename:  filepath.Base(filename),
		InputPath: input,
		OutputDir: filepath.Join(dir, "output"),
		Status:    StatusUploaded,
		Message:   "video uploaded",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.store.Put(ctx, s); err != nil {
		_ = os.RemoveAll(dir)
		return Session{}, err
	}
	return s, nil
}

func writeFile(path string, src io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("save upload: %w", err)
	}
	if _, err := io.Copy(f, src); err != nil {
		_ = f.Close()
		return fmt.Errorf("save upload: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("save upload: %w", err)
	}
	return nil
}

func (r *Registry) Get(ctx context.Context, id string) (Session, error) {
	return r.store.Get(ctx, id)
}

func (r *Registry) List(ctx context.Context) ([]Session, error) {
	return r.store.List(ctx)
}

// Claim moves a session to processing. It fails with ErrBusy when a run is
// already in progress, in this process or another one sharing the directory.
func (r *Registry) Claim(ctx context.Context, id string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.store.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if !s.Claimable() {
		return Session{}, ErrBusy
	}
	if _, held := r.locks[id]; held {
		return Session{}, ErrBusy
	}

	lock := flock.New(filepath.Join(r.Dir(id), lockFile))
	ok, err := lock.TryLock()
	if err != nil {
		return Session{}, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return Session{}, ErrBusy
	}

	s.Status = StatusProcessing
	s.Progress = 0
	s.Message = "starting"
	s.Error = ""
	s.Result = nil
	s.UpdatedAt = r.now()
	if err := r.store.Put(ctx, s); err != nil {
		_ = lock.Unlock()
		return Session{}, err
	}
	r.locks[id] = lock
	return s, nil
}

// Progress records an update from the owning run.
func (r *Registry) Progress(ctx context.Context, id string, percent int, message string) error {
	return r.update(ctx, id, false, func(s *Session) {
		s.Progress = percent
		s.Message = message
	})
}

// Complete finishes the owning run with its batch result.
func (r *Registry) Complete(ctx context.Context, id string, res types.GenerationResult) error {
	return r.update(ctx, id, true, func(s *Session) {
		s.Status = StatusCompleted
		s.Progress = 100
		s.Message = fmt.Sprintf("generated %d shorts", res.ShortsCreated)
		s.Result = &res
	})
}

// Fail finishes the owning run with an error.
func (r *Registry) Fail(ctx context.Context, id string, msg string) error {
	return r.update(ctx, id, true, func(s *Session) {
		s.Status = StatusError
		s.Message = msg
		s.Error = msg
	})
}

func (r *Registry) update(ctx context.Context, id string, release bool, apply func(*Session)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, owned := r.locks[id]; !owned {
		return fmt.Errorf("session %s: no run in progress", id)
	}
	s, err := r.store.Get(ctx, id)
	if err != nil {
		return err
	}
	apply(&s)
	s.UpdatedAt = r.now()
	if err := r.store.Put(ctx, s); err != nil {
		return err
	}
	if release {
		r.releaseLocked(id)
	}
	return nil
}

func (r *Registry) releaseLocked(id string) {
	if lock, ok := r.locks[id]; ok {
		_ = lock.Unlock()
		delete(r.locks, id)
	}
}

// Remove deletes a session and its files. Running sessions cannot be removed.
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if _, owned := r.locks[id]; owned || s.Status == StatusProcessing {
		return ErrBusy
	}
	if err := os.RemoveAll(r.Dir(id)); err != nil {
		return fmt.Errorf("remove session files: %w", err)
	}
	if err := r.store.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return nil
}

// Recover marks sessions left in processing by a previous process as failed.
func (r *Registry) Recover(ctx context.Context) (int, error) {
	all, err := r.store.List(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, s := range all {
		if s.Status != StatusProcessing {
			continue
		}
		s.Status = StatusError
		s.Error = "interrupted by restart"
		s.Message = s.Error
		s.UpdatedAt = r.now()
		if err := r.store.Put(ctx, s); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Observer forwards run progress into the session record. Update failures
// are ignored because progress is advisory.
func (r *Registry) Observer(id string) progress.Observer {
	return progress.Func(func(ctx context.Context, ev progress.Event) {
		msg := ev.Message
		if ev.Err != "" {
			msg = ev.Err
		}
		_ = r.Progress(ctx, id, ev.Percent, msg)
	})
}
