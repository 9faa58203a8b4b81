// users.go — репозиторий пользователей поверх Keycloak Admin REST API.
//
// Email пользователя всегда совпадает с username; инвариант
// поддерживается при создании и обновлении. Удаление — enabled=false.
package repository

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bigkaa/goclasstrack/oauth-module/internal/domain/model"
	"github.com/bigkaa/goclasstrack/oauth-module/internal/keycloak"
)

// userFromKeycloak преобразует представление Keycloak в доменного пользователя.
func userFromKeycloak(ku *keycloak.KeycloakUser) *model.User {
	return &model.User{
		ID:        ku.ID,
		Email:     ku.Email,
		FirstName: ku.FirstName,
		LastName:  ku.LastName,
		Enabled:   ku.Enabled,
	}
}

// UserRepository — репозиторий пользователей.
type UserRepository struct {
	kc     *keycloak.Client
	logger *slog.Logger
}

// NewUserRepository создаёт репозиторий пользователей.
func NewUserRepository(kc *keycloak.Client, logger *slog.Logger) *UserRepository {
	return &UserRepository{
		kc:     kc,
		logger: logger.With(slog.String("component", "user_repository")),
	}
}

// FindByID возвращает пользователя по Keycloak ID.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*model.User, error) {
	ku, err := r.kc.GetUser(ctx, id)
	if err != nil {
		return nil, translateAPIError(err)
	}
	return userFromKeycloak(ku), nil
}

// FindByEmail возвращает пользователя с точным совпадением email.
// Если провайдер вернул несколько записей (исторические дубликаты),
// берётся первая — порядок Keycloak детерминирован по id.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	kus, err := r.kc.FindUsersByEmail(ctx, email)
	if err != nil {
		return nil, translateAPIError(err)
	}
	if len(kus) == 0 {
		return nil, ErrNotFound
	}
	return userFromKeycloak(&kus[0]), nil
}

// FindAll возвращает пользователей realm.
// enabled — опциональный фильтр, применяется на нашей стороне.
// Читает постранично до короткой страницы.
func (r *UserRepository) FindAll(ctx context.Context, enabled *bool) ([]model.User, error) {
	var users []model.User

	for first := 0; ; first += pageSize {
		page, err := r.kc.ListUsers(ctx, first, pageSize)
		if err != nil {
			return nil, translateAPIError(err)
		}

		for i := range page {
			user := userFromKeycloak(&page[i])
			if enabled != nil && user.Enabled != *enabled {
				continue
			}
			users = append(users, *user)
		}

		if len(page) < pageSize {
			return users, nil
		}
	}
}

// Create создаёт пользователя и возвращает его полное представление.
// Keycloak возвращает ID в Location header; затем устанавливается
// пароль и пользователь перечитывается по ID.
func (r *UserRepository) Create(ctx context.Context, uc model.UserCreate) (*model.User, error) {
	ku := &keycloak.KeycloakUser{
		Username:      uc.Email,
		Email:         uc.Email,
		FirstName:     uc.FirstName,
		LastName:      uc.LastName,
		Enabled:       true,
		EmailVerified: true,
	}

	id, err := r.kc.CreateUser(ctx, ku)
	if err != nil {
		return nil, translateAPIError(err)
	}

	if err := r.kc.ResetPassword(ctx, id, uc.Password); err != nil {
		return nil, fmt.Errorf("установка пароля пользователя %s: %w", id, translateAPIError(err))
	}

	created, err := r.kc.GetUser(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("чтение созданного пользователя %s: %w", id, err)
	}

	r.logger.Info("пользователь создан",
		slog.String("user_id", id),
		slog.String("email", uc.Email),
	)

	return userFromKeycloak(created), nil
}

// Update выполняет частичное обновление через read-modify-write:
// представление читается целиком, изменяются только поля патча,
// затем записывается обратно полностью. Email остаётся равным username.
func (r *UserRepository) Update(ctx context.Context, id string, patch model.UserPatch) (*model.User, error) {
	ku, err := r.kc.GetUser(ctx, id)
	if err != nil {
		return nil, translateAPIError(err)
	}

	if patch.FirstName != nil {
		ku.FirstName = *patch.FirstName
	}
	if patch.LastName != nil {
		ku.LastName = *patch.LastName
	}
	if patch.Enabled != nil {
		ku.Enabled = *patch.Enabled
	}
	// Инвариант: email == username
	ku.Email = ku.Username

	if err := r.kc.UpdateUser(ctx, id, ku); err != nil {
		return nil, translateAPIError(err)
	}

	return userFromKeycloak(ku), nil
}

// ResetPassword устанавливает пользователю новый постоянный пароль.
func (r *UserRepository) ResetPassword(ctx context.Context, id, password string) error {
	if err := r.kc.ResetPassword(ctx, id, password); err != nil {
		return translateAPIError(err)
	}
	return nil
}

// Disable отключает пользователя (soft delete).
func (r *UserRepository) Disable(ctx context.Context, id string) error {
	disabled := false
	_, err := r.Update(ctx, id, model.UserPatch{Enabled: &disabled})
	return err
}
