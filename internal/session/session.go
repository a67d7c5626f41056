// Package session tracks uploaded videos and their generation runs.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/forPelevin/hlshorts/internal/types"
)

type Status string

const (
	StatusUploaded   Status = "uploaded"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

var (
	ErrNotFound = errors.New("session not found")
	// ErrBusy means another worker owns the session.
	ErrBusy = errors.New("session is being processed")
)

type Session struct {
	ID        string                  `json:"session_id"`
	Filename  string                  `json:"filename"`
	InputPath string                  `json:"-"`
	OutputDir string                  `json:"-"`
	Status    Status                  `json:"status"`
	Progress  int                     `json:"progress"`
	Message   string                  `json:"message"`
	Error     string                  `json:"error,omitempty"`
	Result    *types.GenerationResult `json:"result,omitempty"`
	CreatedAt time.Time               `json:"created_at"`
	UpdatedAt time.Time               `json:"updated_at"`
}

// Claimable reports whether a new run may start for the session.
func (s Session) Claimable() bool {
	switch s.Status {
	case StatusUploaded, StatusCompleted, StatusError:
		return true
	default:
		return false
	}
}

// Artifact returns the output file of the last run with the given name.
func (s Session) Artifact(name string) (types.OutputArtifact, bool) {
	if s.Result == nil {
		return types.OutputArtifact{}, false
	}
	for _, a := range s.Result.OutputFiles {
		if a.Filename == name {
			return a, true
		}
	}
	return types.OutputArtifact{}, false
}

// Store persists session records.
type Store interface {
	Put(ctx context.Context, s Session) error
	Get(ctx context.Context, id string) (Session, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Session, error)
	Close() error
}
