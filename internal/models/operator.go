package models

import (
	"time"
)

// Operator is a login account allowed to drive the copilot API
type Operator struct {
	ID             string    `json:"id" db:"id"`
	Name           string    `json:"name" db:"name"`
	Email          string    `json:"email" db:"email"`
	HashedPassword string    `json:"-" db:"hashed_password"` // Never expose in JSON
	Roles          []string  `json:"roles" db:"roles"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// LoginRequest represents authentication request payload
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents authentication response with JWT token
type LoginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	Operator  OperatorInfo `json:"operator"`
}

// OperatorInfo represents safe operator information (without sensitive data)
type OperatorInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"created_at"`
}

// ToOperatorInfo converts Operator to OperatorInfo (safe for API responses)
func (o *Operator) ToOperatorInfo() OperatorInfo {
	return OperatorInfo{
		ID:        o.ID,
		Name:      o.Name,
		Email:     o.Email,
		Roles:     o.Roles,
		CreatedAt: o.CreatedAt,
	}
}

// Roles
const (
	RoleOperator = "operator"
	RoleHost     = "host"
)
