package auth

import "pet-health-sync/internal/domain/schema"

// Claims representa la información extraída del token.
// Role decide el scoping de la carga (Admin ve todo).
type Claims struct {
	UserID string
	Email  string
	Role   schema.Role
}
