package auth

import "time"

// Role names known to the application.
const (
	RoleAdmin    = "admin"
	RoleOperator = "operator"
	RoleDriver   = "driver"
)

// User represents an account that can authenticate against the API.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	FullName     string    `json:"full_name"`
	Role         string    `json:"role"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Role is a named permission tier assignable to users.
type Role struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CreateUserInput collects fields for account creation.
type CreateUserInput struct {
	Username string `validate:"required,min=3,max=64"`
	FullName string `validate:"required,max=128"`
	Password string `validate:"required,min=8"`
	Role     string `validate:"required,oneof=admin operator driver"`
}

// UpdateUserInput collects mutable account fields. Nil pointers mean "leave
// unchanged".
type UpdateUserInput struct {
	FullName *string `validate:"omitempty,max=128"`
	Password *string `validate:"omitempty,min=8"`
	Role     *string `validate:"omitempty,oneof=admin operator driver"`
	IsActive *bool
}
