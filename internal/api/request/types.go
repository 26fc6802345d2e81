package request

// LoginRequest is the request body for signing in
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the request body for creating an account
type RegisterRequest struct {
	Email            string         `json:"email"`
	Password         string         `json:"password"`
	Name             string         `json:"name,omitempty"`
	Role             string         `json:"role,omitempty"`
	StoreName        string         `json:"store_name,omitempty"`
	StoreDescription string         `json:"store_description,omitempty"`
	Fields           map[string]any `json:"fields,omitempty"`
}

// SetRoleRequest is the request body for changing a user's role
type SetRoleRequest struct {
	Role string `json:"role"`
}
