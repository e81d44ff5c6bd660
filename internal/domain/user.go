package domain

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Caller is the authenticated principal attached to a request.
type Caller struct {
	UserID string `json:"userId"`
	Role   Role   `json:"role"`
}

func (c Caller) IsAdmin() bool { return c.Role == RoleAdmin }

func (c Caller) Authenticated() bool { return c.UserID != "" || c.IsAdmin() }
