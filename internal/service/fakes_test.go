package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/raphaelgruber/clipvault/internal/db"
	"github.com/raphaelgruber/clipvault/internal/media"
	"github.com/raphaelgruber/clipvault/internal/models"
	"github.com/raphaelgruber/clipvault/internal/notify"
)

// memStore is an in-memory VideoStore. failUpdates makes the next n updates
// return updateErr.
type memStore struct {
	mu          sync.Mutex
	videos      map[string]models.Video
	updates     int
	failUpdates int
	updateErr   error
	onUpdate    func(id string, patch models.VideoPatch)
}

func newMemStore(videos ...*models.Video) *memStore {
	s := &memStore{videos: make(map[string]models.Video)}
	for _, v := range videos {
		s.videos[v.ID] = *v
	}
	return s
}

func (s *memStore) CreateVideo(_ context.Context, v *models.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.videos[v.ID]; ok {
		return db.ErrAlreadyExists
	}
	s.videos[v.ID] = *v
	return nil
}

func (s *memStore) GetVideo(_ context.Context, id string) (*models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (s *memStore) UpdateVideo(_ context.Context, id string, patch models.VideoPatch) (*models.Video, error) {
	s.mu.Lock()
	hook := s.onUpdate
	s.updates++
	if s.failUpdates > 0 {
		s.failUpdates--
		err := s.updateErr
		s.mu.Unlock()
		return nil, err
	}
	v, ok := s.videos[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("update video %s: %w", id, db.ErrNotFound)
	}
	patch.Apply(&v, time.Now().UTC())
	s.videos[id] = v
	s.mu.Unlock()

	if hook != nil {
		hook(id, patch)
	}
	return &v, nil
}

func (s *memStore) ListVideos(_ context.Context, ownerID string) ([]models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Video
	for _, v := range s.videos {
		if ownerID == "" || v.OwnerID == ownerID {
			out = append(out, v)
		}
	}
	slices.SortFunc(out, func(a, b models.Video) int { return b.CreatedAt.Compare(a.CreatedAt) })
	return out, nil
}

func (s *memStore) ListVideosByStatus(_ context.Context, statuses ...models.ProcessingStatus) ([]models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Video
	for _, v := range s.videos {
		if slices.Contains(statuses, v.ProcessingStatus) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *memStore) DeleteVideo(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.videos[id]; !ok {
		return false, nil
	}
	delete(s.videos, id)
	return true, nil
}

func (s *memStore) get(id string) (models.Video, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	return v, ok
}

func (s *memStore) remove(id string) {
	s.mu.Lock()
	delete(s.videos, id)
	s.mu.Unlock()
}

// fakeSampler writes one small file per frame so cleanup can be observed.
type fakeSampler struct {
	sourceErr error
	probeErr  error
	sampleErr error
	metadata  models.VideoMetadata

	mu        sync.Mutex
	outputDir string
	duration  float64
}

func (f *fakeSampler) CheckSource(string) error { return f.sourceErr }

func (f *fakeSampler) Probe(context.Context, string) (*models.VideoMetadata, error) {
	if f.probeErr != nil {
		return nil, f.probeErr
	}
	md := f.metadata
	return &md, nil
}

func (f *fakeSampler) Sample(_ context.Context, _ string, outputDir string, duration float64, n int) ([]media.Frame, error) {
	f.mu.Lock()
	f.outputDir = outputDir
	f.duration = duration
	f.mu.Unlock()
	if f.sampleErr != nil {
		return nil, f.sampleErr
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, err
	}
	stamps := media.Timestamps(duration, n)
	frames := make([]media.Frame, 0, n)
	for i, ts := range stamps {
		path := filepath.Join(outputDir, fmt.Sprintf("frame_%03d.jpg", i))
		if err := os.WriteFile(path, []byte("jpeg"), 0o644); err != nil {
			return nil, err
		}
		frames = append(frames, media.Frame{Index: i, Timestamp: ts, Path: path})
	}
	return frames, nil
}

func (f *fakeSampler) lastOutputDir() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.outputDir
}

type classifyResult struct {
	verdict models.Verdict
	err     error
}

// fakeClassifier answers by frame order. Calls past the script repeat the
// fallback. block makes every call wait for ctx.
type fakeClassifier struct {
	mu       sync.Mutex
	script   []classifyResult
	fallback classifyResult
	block    bool
	panics   bool
	calls    int
}

func (f *fakeClassifier) Classify(ctx context.Context, _ string) (models.Verdict, error) {
	if f.panics {
		panic("classifier exploded")
	}
	if f.block {
		<-ctx.Done()
		return models.VerdictError, ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.fallback
	if f.calls < len(f.script) {
		r = f.script[f.calls]
	}
	f.calls++
	if r.verdict == "" {
		r.verdict = models.VerdictSafe
	}
	if r.err != nil {
		return models.VerdictError, r.err
	}
	return r.verdict, nil
}

type published struct {
	userID string
	event  notify.Event
}

type fakePublisher struct {
	mu     sync.Mutex
	events []published
	err    error
}

func (f *fakePublisher) Publish(userID string, ev notify.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, published{userID: userID, event: ev})
	return f.err
}

func (f *fakePublisher) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, p := range f.events {
		out[i] = p.event.Name
	}
	return out
}

func (f *fakePublisher) progress() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int
	for _, p := range f.events {
		if p.event.Name == notify.EventProgress {
			out = append(out, p.event.Data.Progress)
		}
	}
	return out
}

func (f *fakePublisher) last() notify.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		return notify.Event{}
	}
	return f.events[len(f.events)-1].event
}

var errTransient = errors.New("connection reset by peer")
