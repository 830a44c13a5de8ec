package repository

import (
	"github.com/ManuelReschke/CollectFox/app/models"
	"github.com/ManuelReschke/CollectFox/internal/pkg/tenant"
	"gorm.io/gorm"
)

type noteRepository struct {
	db *gorm.DB
}

// NewNoteRepository creates a new collection note repository instance
func NewNoteRepository(db *gorm.DB) NoteRepository {
	return &noteRepository{db: db}
}

func (r *noteRepository) Create(scope tenant.Scope, note *models.CollectionNote) error {
	note.TenantID = scope.TenantID
	return r.db.Create(note).Error
}

// ListByAccount returns the newest notes first.
func (r *noteRepository) ListByAccount(scope tenant.Scope, accountID uint, limit int) ([]models.CollectionNote, error) {
	var notes []models.CollectionNote
	q := scope.Apply(r.db).Where("account_id = ?", accountID).Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&notes).Error
	return notes, err
}
