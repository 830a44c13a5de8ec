package collections

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/ManuelReschke/CollectFox/app/models"
	"github.com/ManuelReschke/CollectFox/internal/pkg/apperr"
	"github.com/ManuelReschke/CollectFox/internal/pkg/tenant"
)

const defaultNoteLimit = 100

type NoteRequest struct {
	Author          string `json:"author" validate:"max=100"`
	Body            string `json:"body" validate:"required,max=5000"`
	PaymentID       *uint  `json:"payment_id"`
	DunningActionID *uint  `json:"dunning_action_id"`
}

// AddNote stores a free-text annotation on the account.
func (s *Service) AddNote(ctx context.Context, scope tenant.Scope, accountID uint, req NoteRequest) (*models.CollectionNote, error) {
	const op = "collections.note"
	if err := scope.Validate(); err != nil {
		return nil, apperr.Validation(op, "%v", err)
	}
	body := strings.TrimSpace(req.Body)
	if body == "" {
		return nil, apperr.Validation(op, "note body is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := s.repos.Account.GetByID(scope, accountID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound(op, "account %d not found", accountID)
		}
		return nil, apperr.Internal(op, err)
	}

	note := &models.CollectionNote{
		AccountID:       accountID,
		Author:          req.Author,
		Body:            body,
		PaymentID:       req.PaymentID,
		DunningActionID: req.DunningActionID,
	}
	if note.Author == "" {
		note.Author = "system"
	}
	if err := s.repos.Note.Create(scope, note); err != nil {
		return nil, apperr.Internal(op, err)
	}
	return note, nil
}

// ListNotes returns the newest notes first.
func (s *Service) ListNotes(ctx context.Context, scope tenant.Scope, accountID uint, limit int) ([]models.CollectionNote, error) {
	const op = "collections.notes"
	if err := scope.Validate(); err != nil {
		return nil, apperr.Validation(op, "%v", err)
	}
	if limit <= 0 || limit > defaultNoteLimit {
		limit = defaultNoteLimit
	}
	notes, err := s.repos.Note.ListByAccount(scope, accountID, limit)
	if err != nil {
		return nil, apperr.Internal(op, err)
	}
	return notes, nil
}
