package payload

type SignupRequest struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginRequest struct {
	LoginInput string `json:"loginInput" validate:"required"`
	Password   string `json:"password"   validate:"required"`
}

type RecoverRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type VerifyCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code"  validate:"required"`
}

type ResetPasswordRequest struct {
	Email       string `json:"email"       validate:"required,email"`
	Code        string `json:"code"        validate:"required"`
	NewPassword string `json:"newPassword" validate:"required"`
}

// Identity is the public part of a user returned to clients.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type SignupResponse struct {
	Result Identity `json:"result"`
	Token  string   `json:"token"`
}

type LoginResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Result  Identity `json:"result"`
	Token   string   `json:"token"`
}

type MeResponse struct {
	Result Identity `json:"result"`
}

type MessageResponse struct {
	Success bool   `json:"success,omitempty"`
	Message string `json:"message"`
}
