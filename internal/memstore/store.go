// Package memstore is a process-local video store for development and tests.
// Nothing survives a restart.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/raphaelgruber/clipvault/internal/db"
	"github.com/raphaelgruber/clipvault/internal/models"
)

// Store keeps videos in a map guarded by a mutex.
type Store struct {
	mu     sync.RWMutex
	videos map[string]*models.Video
}

// New creates an empty store.
func New() *Store {
	return &Store{videos: make(map[string]*models.Video)}
}

// CreateVideo stores a copy of v. Returns db.ErrAlreadyExists if the id is taken.
func (s *Store) CreateVideo(_ context.Context, v *models.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.videos[v.ID]; ok {
		return fmt.Errorf("create video %s: %w", v.ID, db.ErrAlreadyExists)
	}
	s.videos[v.ID] = clone(v)
	return nil
}

// GetVideo returns a copy of the video, or nil if not found.
func (s *Store) GetVideo(_ context.Context, id string) (*models.Video, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.videos[id]
	if !ok {
		return nil, nil
	}
	return clone(v), nil
}

// UpdateVideo applies patch atomically and returns the new state.
func (s *Store) UpdateVideo(_ context.Context, id string, patch models.VideoPatch) (*models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok {
		return nil, fmt.Errorf("update video %s: %w", id, db.ErrNotFound)
	}
	patch.Apply(v, time.Now().UTC())
	return clone(v), nil
}

// ListVideos returns videos newest first, optionally restricted to one owner.
func (s *Store) ListVideos(_ context.Context, ownerID string) ([]models.Video, error) {
	return s.list(func(v *models.Video) bool {
		return ownerID == "" || v.OwnerID == ownerID
	}, -1), nil
}

// ListVideosByStatus returns videos in any of the given states, oldest first.
func (s *Store) ListVideosByStatus(_ context.Context, statuses ...models.ProcessingStatus) ([]models.Video, error) {
	return s.list(func(v *models.Video) bool {
		return slices.Contains(statuses, v.ProcessingStatus)
	}, 1), nil
}

// DeleteVideo removes a video. Returns false if it did not exist.
func (s *Store) DeleteVideo(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.videos[id]; !ok {
		return false, nil
	}
	delete(s.videos, id)
	return true, nil
}

// Close is a no-op.
func (s *Store) Close(context.Context) error { return nil }

func (s *Store) list(keep func(*models.Video) bool, order int) []models.Video {
	s.mu.RLock()
	out := make([]models.Video, 0, len(s.videos))
	for _, v := range s.videos {
		if keep(v) {
			out = append(out, *clone(v))
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b models.Video) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return order * c
		}
		return order * strings.Compare(a.ID, b.ID)
	})
	return out
}

// clone copies v deeply enough that callers cannot mutate stored state.
func clone(v *models.Video) *models.Video {
	c := *v
	if v.Metadata != nil {
		md := *v.Metadata
		c.Metadata = &md
	}
	if v.FrameSummary != nil {
		fs := *v.FrameSummary
		c.FrameSummary = &fs
	}
	if v.FrameResults != nil {
		c.FrameResults = slices.Clone(v.FrameResults)
	}
	if v.ProcessingError != nil {
		pe := *v.ProcessingError
		c.ProcessingError = &pe
	}
	if v.ProcessedAt != nil {
		t := *v.ProcessedAt
		c.ProcessedAt = &t
	}
	return &c
}
