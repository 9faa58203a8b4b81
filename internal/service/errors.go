// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict — конфликт (дублирующийся ресурс).
	ErrConflict = errors.New("конфликт — ресурс уже существует")
	// ErrRoleDisabled — попытка назначить отключённую роль.
	ErrRoleDisabled = errors.New("роль отключена и не может быть назначена")
	// ErrPartialRevocation — каскадное удаление роли прервано:
	// часть назначений снята, роль осталась активной.
	ErrPartialRevocation = errors.New("каскадное снятие роли прервано — роль не отключена")
)
