// roles.go — репозиторий ролей поверх Keycloak Admin REST API.
//
// Роли — client roles нашего клиента. Keycloak не имеет поля enabled
// для ролей, поэтому флаг кодируется в атрибутах роли одноэлементным
// строковым массивом; отсутствие атрибута читается как enabled=true.
// Удаление роли — это enabled=false (soft delete).
package repository

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/bigkaa/goclasstrack/oauth-module/internal/domain/model"
	"github.com/bigkaa/goclasstrack/oauth-module/internal/keycloak"
)

// enabledAttr — имя атрибута роли, кодирующего флаг enabled.
const enabledAttr = "enabled"

// pageSize — размер страницы при постраничном чтении из Keycloak.
const pageSize = 100

// decodeEnabled читает флаг enabled из атрибутов роли.
// Отсутствующий или пустой атрибут — роль активна.
func decodeEnabled(attrs map[string][]string) bool {
	vals, ok := attrs[enabledAttr]
	if !ok || len(vals) == 0 {
		return true
	}
	enabled, err := strconv.ParseBool(vals[0])
	if err != nil {
		return true
	}
	return enabled
}

// encodeEnabled записывает флаг enabled в атрибуты роли,
// не трогая остальные атрибуты.
func encodeEnabled(attrs map[string][]string, enabled bool) map[string][]string {
	if attrs == nil {
		attrs = make(map[string][]string)
	}
	attrs[enabledAttr] = []string{strconv.FormatBool(enabled)}
	return attrs
}

// roleFromKeycloak преобразует представление Keycloak в доменную роль.
func roleFromKeycloak(kr *keycloak.KeycloakRole) *model.Role {
	role := &model.Role{
		ID:      kr.ID,
		Name:    kr.Name,
		Enabled: decodeEnabled(kr.Attributes),
	}
	if kr.Description != "" {
		desc := kr.Description
		role.Description = &desc
	}
	return role
}

// RoleRepository — репозиторий ролей.
type RoleRepository struct {
	kc     *keycloak.Client
	logger *slog.Logger
}

// NewRoleRepository создаёт репозиторий ролей.
func NewRoleRepository(kc *keycloak.Client, logger *slog.Logger) *RoleRepository {
	return &RoleRepository{
		kc:     kc,
		logger: logger.With(slog.String("component", "role_repository")),
	}
}

// FindByID возвращает роль по внутреннему ID.
func (r *RoleRepository) FindByID(ctx context.Context, id string) (*model.Role, error) {
	kr, err := r.kc.GetRoleByID(ctx, id)
	if err != nil {
		return nil, translateAPIError(err)
	}
	return roleFromKeycloak(kr), nil
}

// FindByName возвращает роль по имени.
func (r *RoleRepository) FindByName(ctx context.Context, name string) (*model.Role, error) {
	kr, err := r.kc.GetClientRole(ctx, name)
	if err != nil {
		return nil, translateAPIError(err)
	}
	return roleFromKeycloak(kr), nil
}

// FindAll возвращает роли клиента.
// enabled — опциональный фильтр; Keycloak не умеет фильтровать
// по атрибутам, поэтому фильтрация выполняется на нашей стороне.
func (r *RoleRepository) FindAll(ctx context.Context, enabled *bool) ([]model.Role, error) {
	krs, err := r.kc.ListClientRoles(ctx)
	if err != nil {
		return nil, translateAPIError(err)
	}

	roles := make([]model.Role, 0, len(krs))
	for i := range krs {
		role := roleFromKeycloak(&krs[i])
		if enabled != nil && role.Enabled != *enabled {
			continue
		}
		roles = append(roles, *role)
	}

	return roles, nil
}

// Create создаёт роль и возвращает её полное представление.
// Keycloak не возвращает тело при создании роли, поэтому созданная
// роль перечитывается по имени; отсутствие роли после успешного
// создания — ошибка провайдера.
func (r *RoleRepository) Create(ctx context.Context, rc model.RoleCreate) (*model.Role, error) {
	kr := &keycloak.KeycloakRole{
		Name:       rc.Name,
		Attributes: encodeEnabled(nil, true),
	}
	if rc.Description != nil {
		kr.Description = *rc.Description
	}

	if err := r.kc.CreateClientRole(ctx, kr); err != nil {
		return nil, translateAPIError(err)
	}

	created, err := r.kc.GetClientRole(ctx, rc.Name)
	if err != nil {
		return nil, fmt.Errorf("чтение созданной роли %q: %w", rc.Name, err)
	}

	r.logger.Info("роль создана",
		slog.String("role_id", created.ID),
		slog.String("name", created.Name),
	)

	return roleFromKeycloak(created), nil
}

// Update выполняет частичное обновление роли через read-modify-write:
// текущее представление читается целиком, изменяются только поля
// патча, затем представление записывается обратно полностью.
// Прочие атрибуты роли сохраняются без изменений.
func (r *RoleRepository) Update(ctx context.Context, id string, patch model.RolePatch) (*model.Role, error) {
	kr, err := r.kc.GetRoleByID(ctx, id)
	if err != nil {
		return nil, translateAPIError(err)
	}

	if patch.Name != nil {
		kr.Name = *patch.Name
	}
	if patch.Description != nil {
		kr.Description = *patch.Description
	}
	if patch.Enabled != nil {
		kr.Attributes = encodeEnabled(kr.Attributes, *patch.Enabled)
	}

	if err := r.kc.UpdateRoleByID(ctx, id, kr); err != nil {
		return nil, translateAPIError(err)
	}

	return roleFromKeycloak(kr), nil
}

// Disable отключает роль (soft delete).
func (r *RoleRepository) Disable(ctx context.Context, id string) error {
	disabled := false
	_, err := r.Update(ctx, id, model.RolePatch{Enabled: &disabled})
	return err
}

// UsersWithRole возвращает всех пользователей, которым назначена роль.
// Читает постранично до короткой страницы.
func (r *RoleRepository) UsersWithRole(ctx context.Context, roleName string) ([]model.User, error) {
	var users []model.User

	for first := 0; ; first += pageSize {
		page, err := r.kc.UsersWithRole(ctx, roleName, first, pageSize)
		if err != nil {
			return nil, translateAPIError(err)
		}

		for i := range page {
			users = append(users, *userFromKeycloak(&page[i]))
		}

		if len(page) < pageSize {
			return users, nil
		}
	}
}

// RolesOfUser возвращает роли клиента, назначенные пользователю.
func (r *RoleRepository) RolesOfUser(ctx context.Context, userID string) ([]model.Role, error) {
	krs, err := r.kc.ListUserClientRoles(ctx, userID)
	if err != nil {
		return nil, translateAPIError(err)
	}

	roles := make([]model.Role, 0, len(krs))
	for i := range krs {
		roles = append(roles, *roleFromKeycloak(&krs[i]))
	}

	return roles, nil
}

// AddRolesToUser назначает пользователю роли.
// Keycloak требует в mapping-запросе полные представления (id + name).
func (r *RoleRepository) AddRolesToUser(ctx context.Context, userID string, roles []model.Role) error {
	if err := r.kc.AddUserClientRoles(ctx, userID, mappingRefs(roles)); err != nil {
		return translateAPIError(err)
	}
	return nil
}

// RemoveRolesFromUser снимает с пользователя роли.
func (r *RoleRepository) RemoveRolesFromUser(ctx context.Context, userID string, roles []model.Role) error {
	if err := r.kc.RemoveUserClientRoles(ctx, userID, mappingRefs(roles)); err != nil {
		return translateAPIError(err)
	}
	return nil
}

// mappingRefs строит представления ролей для role-mapping запросов.
func mappingRefs(roles []model.Role) []keycloak.KeycloakRole {
	refs := make([]keycloak.KeycloakRole, 0, len(roles))
	for _, role := range roles {
		refs = append(refs, keycloak.KeycloakRole{ID: role.ID, Name: role.Name})
	}
	return refs
}
