package identity

// AuthError is a user-facing admin/authorization failure. Callers compare with
// errors.Is against the sentinels below.
type AuthError struct {
	Code    string
	Message string
}

func (e *AuthError) Error() string {
	return e.Code + ": " + e.Message
}

var (
	ErrNotAdmin        = &AuthError{Code: "NOT_ADMIN", Message: "admin privileges required"}
	ErrAlreadyClaimed  = &AuthError{Code: "ALREADY_CLAIMED", Message: "the admin slot is already claimed"}
	ErrWrongSecret     = &AuthError{Code: "WRONG_SECRET", Message: "admin password is incorrect"}
	ErrSecretMismatch  = &AuthError{Code: "SECRET_MISMATCH", Message: "passwords do not match"}
	ErrNoCredentialSet = &AuthError{Code: "NO_CREDENTIAL_SET", Message: "no admin password has been set"}
	ErrEmptySecret     = &AuthError{Code: "EMPTY_SECRET", Message: "admin password must not be empty"}
	ErrNoIdentity      = &AuthError{Code: "NO_IDENTITY", Message: "client identity unavailable; admin features disabled"}
	ErrRemoteDisabled  = &AuthError{Code: "REMOTE_DISABLED", Message: "remote store not configured"}
)
