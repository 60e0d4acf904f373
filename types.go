package goAuthClient

import "time"

// RegisterRequest is the account creation form.
type RegisterRequest struct {
	FullName        string `json:"full_name" validate:"required,min=2"`
	Username        string `json:"username" validate:"required,min=3"`
	Email           string `json:"email" validate:"required,min=5,accountemail"`
	Mobile          string `json:"mobile" validate:"required,mobile"`
	Password        string `json:"password" validate:"required,min=8,passwordchars"`
	ConfirmPassword string `json:"confirm_password" validate:"required,eqfield=Password"`
}

// RegisterResult is the body of a 201 from the register endpoint.
type RegisterResult struct {
	Message string `json:"message"`
}

// LoginRequest is the credential form accepted by Login.
type LoginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

// TokenPair is the credential pair issued on login.
type TokenPair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// LoginResult is the body of a successful login.
type LoginResult struct {
	Message  string    `json:"message"`
	Username string    `json:"username"`
	Tokens   TokenPair `json:"tokens"`
}

// LogoutResult reports the outcome of Logout.
type LogoutResult struct {
	Message     string `json:"message"`
	RedirectURL string `json:"redirect_url,omitempty"`
}

// User is the authenticated account as reported by the user endpoint.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

// Profile is a public profile.
type Profile struct {
	User           int64  `json:"user"`
	Avatar         string `json:"avatar"`
	Bio            string `json:"bio"`
	Gender         string `json:"gender"`
	Website        string `json:"website"`
	IsPrivate      bool   `json:"is_private"`
	FollowersCount int    `json:"followers_count"`
	FollowingCount int    `json:"following_count"`
	IsOwner        bool   `json:"is_owner"`
}

// Status summarises local session state without touching the network.
type Status struct {
	Authenticated   bool
	HasAccessToken  bool
	HasRefreshToken bool
	// AccessExpiresAt is zero when the access token is absent or has no
	// decodable exp claim.
	AccessExpiresAt time.Time
}
