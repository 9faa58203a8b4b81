// users.go — сервис управления пользователями и их ролями.
// Бизнес-правила: уникальность email при создании, запрет назначения
// отключённых ролей (проверка ДО любых mapping-запросов к Keycloak).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bigkaa/goclasstrack/oauth-module/internal/domain/model"
	"github.com/bigkaa/goclasstrack/oauth-module/internal/repository"
)

// UserService — сервис управления пользователями.
type UserService struct {
	users  UserStore
	roles  RoleStore
	logger *slog.Logger
}

// NewUserService создаёт сервис пользователей.
func NewUserService(users UserStore, roles RoleStore, logger *slog.Logger) *UserService {
	return &UserService{
		users:  users,
		roles:  roles,
		logger: logger.With(slog.String("component", "user_service")),
	}
}

// List возвращает пользователей с опциональным фильтром по enabled.
func (s *UserService) List(ctx context.Context, enabled *bool) ([]model.User, error) {
	return s.users.FindAll(ctx, enabled)
}

// Get возвращает пользователя по ID.
func (s *UserService) Get(ctx context.Context, id string) (*model.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return nil, translateRepoErr(err)
	}
	return user, nil
}

// Create создаёт пользователя.
// Перед созданием проверяется уникальность email; гонка между
// проверкой и созданием закрывается 409 от самого Keycloak.
func (s *UserService) Create(ctx context.Context, uc model.UserCreate) (*model.User, error) {
	_, err := s.users.FindByEmail(ctx, uc.Email)
	if err == nil {
		return nil, fmt.Errorf("%w: пользователь с email %q уже существует", ErrConflict, uc.Email)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	user, err := s.users.Create(ctx, uc)
	if err != nil {
		return nil, translateRepoErr(err)
	}

	return user, nil
}

// Update выполняет частичное обновление пользователя.
func (s *UserService) Update(ctx context.Context, id string, patch model.UserPatch) (*model.User, error) {
	user, err := s.users.Update(ctx, id, patch)
	if err != nil {
		return nil, translateRepoErr(err)
	}
	return user, nil
}

// ResetPassword устанавливает пользователю новый пароль.
func (s *UserService) ResetPassword(ctx context.Context, id, password string) error {
	if err := s.users.ResetPassword(ctx, id, password); err != nil {
		return translateRepoErr(err)
	}
	return nil
}

// Disable отключает пользователя (soft delete).
func (s *UserService) Disable(ctx context.Context, id string) error {
	if err := s.users.Disable(ctx, id); err != nil {
		return translateRepoErr(err)
	}

	s.logger.Info("пользователь отключён", slog.String("user_id", id))
	return nil
}

// ListRoles возвращает роли, назначенные пользователю.
func (s *UserService) ListRoles(ctx context.Context, userID string) ([]model.Role, error) {
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return nil, translateRepoErr(err)
	}

	roles, err := s.roles.RolesOfUser(ctx, userID)
	if err != nil {
		return nil, translateRepoErr(err)
	}

	return roles, nil
}

// AssignRoles назначает пользователю роли по их ID.
// Все роли резолвятся и проверяются ДО первого mapping-запроса:
// хотя бы одна отключённая роль — ErrRoleDisabled, назначения
// не выполняются вовсе.
func (s *UserService) AssignRoles(ctx context.Context, userID string, roleIDs []string) error {
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return translateRepoErr(err)
	}

	roles, err := s.resolveRoles(ctx, roleIDs)
	if err != nil {
		return err
	}

	for _, role := range roles {
		if !role.Enabled {
			return fmt.Errorf("%w: %q", ErrRoleDisabled, role.Name)
		}
	}

	if err := s.roles.AddRolesToUser(ctx, userID, roles); err != nil {
		return translateRepoErr(err)
	}

	s.logger.Info("роли назначены",
		slog.String("user_id", userID),
		slog.Int("count", len(roles)),
	)

	return nil
}

// RevokeRoles снимает с пользователя роли по их ID.
// Отключённые роли сниматься МОГУТ — иначе их не вычистить.
func (s *UserService) RevokeRoles(ctx context.Context, userID string, roleIDs []string) error {
	if _, err := s.users.FindByID(ctx, userID); err != nil {
		return translateRepoErr(err)
	}

	roles, err := s.resolveRoles(ctx, roleIDs)
	if err != nil {
		return err
	}

	if err := s.roles.RemoveRolesFromUser(ctx, userID, roles); err != nil {
		return translateRepoErr(err)
	}

	s.logger.Info("роли сняты",
		slog.String("user_id", userID),
		slog.Int("count", len(roles)),
	)

	return nil
}

// resolveRoles резолвит список ID в полные роли.
func (s *UserService) resolveRoles(ctx context.Context, roleIDs []string) ([]model.Role, error) {
	roles := make([]model.Role, 0, len(roleIDs))
	for _, id := range roleIDs {
		role, err := s.roles.FindByID(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("%w: роль %s", ErrNotFound, id)
			}
			return nil, err
		}
		roles = append(roles, *role)
	}
	return roles, nil
}
