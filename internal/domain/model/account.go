package model

// LoginRequest is the sign-in payload sent to the auth service.
type LoginRequest struct {
	Email      string
	Password   string
	DeviceName string
}

// Account is the signed-in user as reported by the auth service.
type Account struct {
	ID    int64
	Name  string
	Email string
}
