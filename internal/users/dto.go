package users

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/missions-backend/pkg/db/models"
	"github.com/angelmondragon/missions-backend/pkg/enums"
)

// UserDTO is the transport shape of a user.
type UserDTO struct {
	ID         uuid.UUID        `json:"id"`
	Email      string           `json:"email"`
	Name       *string          `json:"name,omitempty"`
	Role       enums.MemberRole `json:"role"`
	Level      int              `json:"level"`
	Experience int64            `json:"experience"`
	CreatedAt  time.Time        `json:"created_at"`
}

// CreateUserDTO holds the data required by the repo to persist a new user.
type CreateUserDTO struct {
	ID    uuid.UUID
	Email string
	Name  *string
	Role  enums.MemberRole
}

func (d CreateUserDTO) ToModel() *models.User {
	role := d.Role
	if role == "" {
		role = enums.MemberRoleUser
	}
	return &models.User{
		ID:    d.ID,
		Email: strings.ToLower(strings.TrimSpace(d.Email)),
		Name:  d.Name,
		Role:  role,
		Level: 1,
	}
}

func FromModel(u *models.User) *UserDTO {
	if u == nil {
		return nil
	}
	return &UserDTO{
		ID:         u.ID,
		Email:      u.Email,
		Name:       u.Name,
		Role:       u.Role,
		Level:      u.Level,
		Experience: u.Experience,
		CreatedAt:  u.CreatedAt,
	}
}
