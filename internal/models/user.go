package models

// Role - роль пользователя
type Role string

const (
	RoleAnonymous Role = "anonymous"
	RoleCitizen   Role = "citizen"
	RoleResponder Role = "responder"
	RoleAdmin     Role = "admin"
)

// Privileged - responder и admin
func (r Role) Privileged() bool {
	return r == RoleResponder || r == RoleAdmin
}

// Valid сообщает, известна ли роль
func (r Role) Valid() bool {
	switch r {
	case RoleAnonymous, RoleCitizen, RoleResponder, RoleAdmin:
		return true
	}
	return false
}

// UserStatus - состояние учетной записи
type UserStatus string

const (
	UserActive    UserStatus = "active"
	UserSuspended UserStatus = "suspended"
)

type User struct {
	ID     string     `json:"id"`
	Name   string     `json:"name"`
	Role   Role       `json:"role"`
	Status UserStatus `json:"status"`
}
