package service

import "github.com/google/uuid"

const (
	RoleCajero        = "cajero"
	RoleSupervisor    = "supervisor"
	RoleAdministrador = "administrador"
)

// Actor is the authenticated caller of a service operation.
type Actor struct {
	AdminUserID uuid.UUID
	Role        string
}

func (a Actor) IsAdministrator() bool { return a.Role == RoleAdministrador }

// CanOverride reports whether the actor may act on sessions opened by others.
func (a Actor) CanOverride() bool {
	return a.Role == RoleAdministrador || a.Role == RoleSupervisor
}
