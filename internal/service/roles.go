// roles.go — сервис управления ролями.
// Бизнес-правила: уникальность имени при создании, каскадное снятие
// роли со всех пользователей при удалении (роль отключается только
// после успешного снятия всех назначений).
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bigkaa/goclasstrack/oauth-module/internal/domain/model"
	"github.com/bigkaa/goclasstrack/oauth-module/internal/repository"
)

// RoleService — сервис управления ролями.
type RoleService struct {
	roles  RoleStore
	logger *slog.Logger
}

// NewRoleService создаёт сервис ролей.
func NewRoleService(roles RoleStore, logger *slog.Logger) *RoleService {
	return &RoleService{
		roles:  roles,
		logger: logger.With(slog.String("component", "role_service")),
	}
}

// List возвращает роли с опциональным фильтром по enabled.
func (s *RoleService) List(ctx context.Context, enabled *bool) ([]model.Role, error) {
	return s.roles.FindAll(ctx, enabled)
}

// Get возвращает роль по ID.
func (s *RoleService) Get(ctx context.Context, id string) (*model.Role, error) {
	role, err := s.roles.FindByID(ctx, id)
	if err != nil {
		return nil, translateRepoErr(err)
	}
	return role, nil
}

// Create создаёт роль.
// Перед созданием проверяется уникальность имени; гонка между
// проверкой и созданием закрывается 409 от самого Keycloak.
func (s *RoleService) Create(ctx context.Context, rc model.RoleCreate) (*model.Role, error) {
	_, err := s.roles.FindByName(ctx, rc.Name)
	if err == nil {
		return nil, fmt.Errorf("%w: роль с именем %q уже существует", ErrConflict, rc.Name)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	role, err := s.roles.Create(ctx, rc)
	if err != nil {
		return nil, translateRepoErr(err)
	}

	return role, nil
}

// Update выполняет частичное обновление роли.
func (s *RoleService) Update(ctx context.Context, id string, patch model.RolePatch) (*model.Role, error) {
	role, err := s.roles.Update(ctx, id, patch)
	if err != nil {
		return nil, translateRepoErr(err)
	}
	return role, nil
}

// Delete удаляет роль: снимает её со всех пользователей и отключает.
// Порядок строгий — сначала все назначения, затем enabled=false.
// Ошибка в середине каскада прерывает удаление ДО отключения роли
// и возвращается как ErrPartialRevocation; повтор удаления безопасен,
// снятые назначения просто не найдутся повторно.
func (s *RoleService) Delete(ctx context.Context, id string) error {
	role, err := s.roles.FindByID(ctx, id)
	if err != nil {
		return translateRepoErr(err)
	}

	holders, err := s.roles.UsersWithRole(ctx, role.Name)
	if err != nil {
		return fmt.Errorf("получение пользователей роли %q: %w", role.Name, err)
	}

	revoked := 0
	for _, holder := range holders {
		if err := s.roles.RemoveRolesFromUser(ctx, holder.ID, []model.Role{*role}); err != nil {
			return fmt.Errorf("%w: снято %d из %d назначений: %v",
				ErrPartialRevocation, revoked, len(holders), err)
		}
		revoked++
	}

	if err := s.roles.Disable(ctx, id); err != nil {
		return translateRepoErr(err)
	}

	s.logger.Info("роль удалена",
		slog.String("role_id", id),
		slog.String("name", role.Name),
		slog.Int("revoked", revoked),
	)

	return nil
}

// translateRepoErr транслирует ошибки репозитория в ошибки сервиса.
func translateRepoErr(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repository.ErrConflict):
		return ErrConflict
	default:
		return err
	}
}
