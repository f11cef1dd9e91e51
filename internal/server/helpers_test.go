package server_test

import (
	"github.com/TNEM22/synera-app-backend/internal/auth"
	"github.com/TNEM22/synera-app-backend/internal/models"
)

func identityOf(u *models.User) auth.Identity {
	return auth.Identity{UserID: u.ID, Role: u.Role}
}
