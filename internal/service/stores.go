// stores.go — интерфейсы слоя данных, используемые сервисами.
// Реализуются репозиториями пакета repository; в тестах подменяются
// in-memory фейками.
package service

import (
	"context"

	"github.com/bigkaa/goclasstrack/oauth-module/internal/domain/model"
)

// RoleStore — операции над ролями.
type RoleStore interface {
	FindByID(ctx context.Context, id string) (*model.Role, error)
	FindByName(ctx context.Context, name string) (*model.Role, error)
	FindAll(ctx context.Context, enabled *bool) ([]model.Role, error)
	Create(ctx context.Context, rc model.RoleCreate) (*model.Role, error)
	Update(ctx context.Context, id string, patch model.RolePatch) (*model.Role, error)
	Disable(ctx context.Context, id string) error
	UsersWithRole(ctx context.Context, roleName string) ([]model.User, error)
	RolesOfUser(ctx context.Context, userID string) ([]model.Role, error)
	AddRolesToUser(ctx context.Context, userID string, roles []model.Role) error
	RemoveRolesFromUser(ctx context.Context, userID string, roles []model.Role) error
}

// UserStore — операции над пользователями.
type UserStore interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	FindByEmail(ctx context.Context, email string) (*model.User, error)
	FindAll(ctx context.Context, enabled *bool) ([]model.User, error)
	Create(ctx context.Context, uc model.UserCreate) (*model.User, error)
	Update(ctx context.Context, id string, patch model.UserPatch) (*model.User, error)
	ResetPassword(ctx context.Context, id, password string) error
	Disable(ctx context.Context, id string) error
}
