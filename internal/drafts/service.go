// Package drafts holds uncommitted edits to stored resources. Each draft
// carries an undo/redo ledger and is written back with Commit.
package drafts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rpattn/resourcekit/internal/domain"
	"github.com/rpattn/resourcekit/internal/repository"
	"github.com/rpattn/resourcekit/internal/undoredo"
	"github.com/rpattn/resourcekit/pkg/validator"
)

var (
	// ErrDraftNotFound is returned for unknown or closed drafts.
	ErrDraftNotFound = errors.New("draft not found")
	// ErrConflict is returned by Commit when the resource changed after the
	// draft was opened.
	ErrConflict = errors.New("resource changed since draft was opened")
	// ErrCommitting is returned for edits to a draft while it is being
	// committed.
	ErrCommitting = errors.New("draft is being committed")
)

// Draft is a snapshot of an open draft.
type Draft struct {
	ID          uuid.UUID        `json:"id"`
	ResourceID  uuid.UUID        `json:"resource_id"`
	LookupKey   domain.LookupKey `json:"lookup_key"`
	SessionID   *uuid.UUID       `json:"session_id,omitempty"`
	BaseVersion int64            `json:"base_version"`
	Fields      domain.Object    `json:"fields"`
	Changes     domain.Object    `json:"changes"`
	Position    int              `json:"position"`
	Length      int              `json:"length"`
	CanUndo     bool             `json:"can_undo"`
	CanRedo     bool             `json:"can_redo"`
	OpenedAt    time.Time        `json:"opened_at"`
}

type draft struct {
	id          uuid.UUID
	resourceID  uuid.UUID
	key         domain.LookupKey
	sessionID   *uuid.UUID
	baseVersion int64
	ledger      *undoredo.Ledger
	openedAt    time.Time
	committing  bool
}

func (d *draft) view() Draft {
	var session *uuid.UUID
	if d.sessionID != nil {
		id := *d.sessionID
		session = &id
	}
	return Draft{
		ID:          d.id,
		ResourceID:  d.resourceID,
		LookupKey:   d.key,
		SessionID:   session,
		BaseVersion: d.baseVersion,
		Fields:      d.ledger.Current(),
		Changes:     d.ledger.Diff(),
		Position:    d.ledger.Position(),
		Length:      d.ledger.Len(),
		CanUndo:     d.ledger.CanUndo(),
		CanRedo:     d.ledger.CanRedo(),
		OpenedAt:    d.openedAt,
	}
}

// Service manages open drafts.
type Service struct {
	repo      repository.ResourceRepository
	validator *validator.FieldsValidator
	logger    *zap.Logger

	mu     sync.Mutex
	drafts map[uuid.UUID]*draft
}

// NewService creates a draft service writing through repo.
func NewService(repo repository.ResourceRepository, fv *validator.FieldsValidator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:      repo,
		validator: fv,
		logger:    logger.Named("drafts"),
		drafts:    make(map[uuid.UUID]*draft),
	}
}

// Open starts a draft of the stored resource. sessionID may be nil.
func (s *Service) Open(ctx context.Context, resourceID uuid.UUID, sessionID *uuid.UUID) (Draft, error) {
	resource, err := s.repo.GetByID(ctx, resourceID)
	if err != nil {
		return Draft{}, err
	}

	d := &draft{
		id:          uuid.New(),
		resourceID:  resource.ID,
		key:         resource.LookupKey,
		baseVersion: resource.Version,
		ledger:      undoredo.New(resource.Fields),
		openedAt:    time.Now(),
	}
	if sessionID != nil {
		id := *sessionID
		d.sessionID = &id
	}

	s.mu.Lock()
	s.drafts[d.id] = d
	s.mu.Unlock()

	s.logger.Debug("draft opened",
		zap.String("draft_id", d.id.String()),
		zap.String("resource_id", resource.ID.String()),
		zap.Int64("version", resource.Version))
	return d.view(), nil
}

// Get returns the draft's current state.
func (s *Service) Get(id uuid.UUID) (Draft, error) {
	return s.with(id, func(d *draft) error { return nil })
}

// Update merges patch over the current snapshot and records the result.
func (s *Service) Update(id uuid.UUID, patch domain.Object) (Draft, error) {
	return s.edit(id, func(l *undoredo.Ledger) {
		l.Update(domain.MergeFields(l.Current(), patch))
	})
}

// Undo steps back one snapshot; at the start of the history it is a no-op.
func (s *Service) Undo(id uuid.UUID) (Draft, error) {
	return s.edit(id, func(l *undoredo.Ledger) { l.Undo() })
}

// Redo steps forward one snapshot; at the end of the history it is a no-op.
func (s *Service) Redo(id uuid.UUID) (Draft, error) {
	return s.edit(id, func(l *undoredo.Ledger) { l.Redo() })
}

// Reset discards every edit.
func (s *Service) Reset(id uuid.UUID) (Draft, error) {
	return s.edit(id, func(l *undoredo.Ledger) { l.Reset() })
}

// Diff returns the fields changed relative to the stored resource.
func (s *Service) Diff(id uuid.UUID) (domain.Object, error) {
	view, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	return view.Changes, nil
}

// Discard closes the draft without writing it.
func (s *Service) Discard(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.drafts[id]; !ok {
		return fmt.Errorf("%w: %s", ErrDraftNotFound, id)
	}
	delete(s.drafts, id)
	return nil
}

// DiscardSession closes every draft owned by sessionID and returns how many
// were closed.
func (s *Service) DiscardSession(sessionID uuid.UUID) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	closed := 0
	for id, d := range s.drafts {
		if d.sessionID != nil && *d.sessionID == sessionID {
			delete(s.drafts, id)
			closed++
		}
	}
	return closed
}

// Commit validates the draft's changes, patches the stored resource with
// them and closes the draft. The write only happens while the resource is
// still at the draft's base version, otherwise ErrConflict is returned. An
// invalid draft stays open and the returned error is a
// validator.ValidationResult. Edits are refused while a commit runs.
func (s *Service) Commit(ctx context.Context, id uuid.UUID) (domain.Resource, error) {
	s.mu.Lock()
	d, ok := s.drafts[id]
	if !ok {
		s.mu.Unlock()
		return domain.Resource{}, fmt.Errorf("%w: %s", ErrDraftNotFound, id)
	}
	if d.committing {
		s.mu.Unlock()
		return domain.Resource{}, fmt.Errorf("%w: %s", ErrCommitting, id)
	}
	d.committing = true
	changes := d.ledger.Diff()
	resourceID, key, baseVersion := d.resourceID, d.key, d.baseVersion
	s.mu.Unlock()

	committed := false
	defer func() {
		if !committed {
			s.mu.Lock()
			d.committing = false
			s.mu.Unlock()
		}
	}()

	if len(changes) == 0 {
		current, err := s.repo.GetByID(ctx, resourceID)
		if err != nil {
			return domain.Resource{}, err
		}
		if current.Version != baseVersion {
			return domain.Resource{}, conflict(resourceID, current.Version, baseVersion)
		}
		committed = true
		s.close(id)
		return current, nil
	}

	if result := s.validator.ValidateFields(key, changes); !result.IsValid {
		s.logger.Info("draft rejected",
			zap.String("draft_id", id.String()),
			zap.Int("errors", len(result.Errors)))
		return domain.Resource{}, result
	}

	updated, err := s.repo.PatchVersion(ctx, resourceID, baseVersion, changes)
	if err != nil {
		if errors.Is(err, repository.ErrVersionConflict) {
			return domain.Resource{}, fmt.Errorf("%w: %v", ErrConflict, err)
		}
		return domain.Resource{}, fmt.Errorf("failed to commit draft %s: %w", id, err)
	}
	committed = true
	s.close(id)

	s.logger.Info("draft committed",
		zap.String("draft_id", id.String()),
		zap.String("resource_id", resourceID.String()),
		zap.Int64("version", updated.Version),
		zap.Int("changed_fields", len(changes)))
	return updated, nil
}

func conflict(resourceID uuid.UUID, current, base int64) error {
	return fmt.Errorf("%w: %s is at version %d, draft based on %d", ErrConflict, resourceID, current, base)
}

func (s *Service) close(id uuid.UUID) {
	s.mu.Lock()
	delete(s.drafts, id)
	s.mu.Unlock()
}

// edit applies fn to the draft's ledger unless a commit is running.
func (s *Service) edit(id uuid.UUID, fn func(*undoredo.Ledger)) (Draft, error) {
	return s.with(id, func(d *draft) error {
		if d.committing {
			return fmt.Errorf("%w: %s", ErrCommitting, id)
		}
		fn(d.ledger)
		return nil
	})
}

func (s *Service) with(id uuid.UUID, fn func(*draft) error) (Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.drafts[id]
	if !ok {
		return Draft{}, fmt.Errorf("%w: %s", ErrDraftNotFound, id)
	}
	if err := fn(d); err != nil {
		return Draft{}, err
	}
	return d.view(), nil
}
