// Package situations owns the materialized situation records produced by
// completed situation scans, the human actions applied to them, and the
// annotations attached to scan runs.
package situations

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	stderrors "insight-workflows/internal/common/errors"
	"insight-workflows/internal/models"
)

// Store keeps situations and annotations in process memory, mirroring the
// job store's durability contract.
type Store struct {
	mu          sync.RWMutex
	situations  map[string]*models.Situation
	annotations map[string][]models.Annotation
}

func NewStore() *Store {
	return &Store{
		situations:  make(map[string]*models.Situation),
		annotations: make(map[string][]models.Annotation),
	}
}

// Register materializes situations from a completed scan. Re-registering an
// existing id is a no-op so replayed results cannot clobber action fields.
func (s *Store) Register(situations []models.Situation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range situations {
		sit := situations[i]
		if _, exists := s.situations[sit.SituationID]; exists {
			continue
		}
		if sit.Status == "" {
			sit.Status = models.SituationOpen
		}
		s.situations[sit.SituationID] = &sit
	}
}

func (s *Store) Get(situationID string) (*models.Situation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sit, ok := s.situations[situationID]
	if !ok {
		return nil, stderrors.NewSituationNotFoundError(situationID)
	}
	clone := *sit
	return &clone, nil
}

func (s *Store) List() []models.Situation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Situation, 0, len(s.situations))
	for _, sit := range s.situations {
		out = append(out, *sit)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SituationID < out[j].SituationID })
	return out
}

// update applies fn to the live record under the write lock.
func (s *Store) update(situationID string, fn func(*models.Situation) error) (*models.Situation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sit, ok := s.situations[situationID]
	if !ok {
		return nil, stderrors.NewSituationNotFoundError(situationID)
	}
	if err := fn(sit); err != nil {
		return nil, err
	}
	sit.UpdatedAt = time.Now().UTC()

	clone := *sit
	return &clone, nil
}

// Annotate attaches a note to a situation-scan run.
func (s *Store) Annotate(requestID, author, text string) models.Annotation {
	annotation := models.Annotation{
		AnnotationID: uuid.New().String(),
		RequestID:    requestID,
		Author:       author,
		Text:         text,
		CreatedAt:    time.Now().UTC(),
	}

	s.mu.Lock()
	s.annotations[requestID] = append(s.annotations[requestID], annotation)
	s.mu.Unlock()

	return annotation
}

func (s *Store) Annotations(requestID string) []models.Annotation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Annotation(nil), s.annotations[requestID]...)
}
