package auth

import "github.com/stockbook/stockbook/internal/shared"

// User represents an account that can authenticate.
type User struct {
	ID           string
	Username     string
	Role         string
	PasswordHash string
	IsActive     bool
}

// Actor returns the request identity of the user.
func (u User) Actor() shared.Actor {
	return shared.Actor{ID: u.ID, Username: u.Username, Role: u.Role}
}

var roleRank = map[string]int{
	shared.RoleViewer:   1,
	shared.RoleOperator: 2,
	shared.RoleAdmin:    3,
}

// Allows reports whether role meets the minimum role. Admin implies
// operator, operator implies viewer.
func Allows(role, minimum string) bool {
	have, ok := roleRank[role]
	if !ok {
		return false
	}
	return have >= roleRank[minimum]
}
