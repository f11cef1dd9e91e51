package repositories

import (
	"github.com/TNEM22/synera-app-backend/internal/models"

	"gorm.io/gorm"
)

// Store bundles the repositories of one database handle.
type Store struct {
	DB       *gorm.DB
	Users    *Repository[models.User]
	AllUsers *Repository[models.User]
	Projects *Repository[models.Project]
	Tasks    *Repository[models.Task]
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		DB:       db,
		Users:    New[models.User](db, models.ActiveUsers),
		AllUsers: New[models.User](db),
		Projects: New[models.Project](db),
		Tasks:    New[models.Task](db),
	}
}

// WithTx returns a Store whose repositories run inside tx.
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{
		DB:       tx,
		Users:    s.Users.WithTx(tx),
		AllUsers: s.AllUsers.WithTx(tx),
		Projects: s.Projects.WithTx(tx),
		Tasks:    s.Tasks.WithTx(tx),
	}
}
