package model

import "time"

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleTeamleader Role = "teamleader"
	RoleSales      Role = "sales"
	RoleForklift   Role = "forklift"
	RoleTechnical  Role = "technical"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleTeamleader, RoleSales, RoleForklift, RoleTechnical:
		return true
	}
	return false
}

// DashboardPath is where the front end sends a user after login.
func (r Role) DashboardPath() string {
	if !r.Valid() {
		return "/"
	}
	return "/dashboard/" + string(r) + "/index.html"
}

type User struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Role        Role       `json:"role"`
	CreatedAt   time.Time  `json:"createdAt"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}
