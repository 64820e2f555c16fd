package request

// RegisterRequest is the request body for registering a user
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Nickname string `json:"nickname,omitempty"`
}

// LoginRequest is the request body for logging in
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// UpdateNicknameRequest is the request body for changing a nickname
type UpdateNicknameRequest struct {
	Nickname string `json:"nickname"`
}

// CreateUserRequest is the request body for an admin creating an account
type CreateUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Nickname string `json:"nickname,omitempty"`
	IsAdmin  bool   `json:"isAdmin"`
}
