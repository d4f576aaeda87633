package utils

import "fmt"

type AppError struct {
	Code    string
	Message string
	Origin  error // Original error that caused this error, if any
}

func (appErr *AppError) Error() string {
	if appErr.Origin != nil {
		return appErr.Message + ": " + appErr.Origin.Error()
	}
	return appErr.Message
}

// Standard error codes for the application
const (
	// Resource errors
	ErrNotFound     = "NOT_FOUND"
	ErrDuplicate    = "DUPLICATE"
	ErrInvalidInput = "INVALID_INPUT"

	// Authentication/Authorization errors
	ErrUnauthorized = "UNAUTHORIZED"
	ErrForbidden    = "FORBIDDEN" // User is authenticated but doesn't have permission
	ErrInvalidToken = "INVALID_TOKEN"

	// Messaging permission errors. Kept distinct because the client UI
	// branches on them (connect affordance vs blocked notice).
	ErrNotConnected = "NOT_CONNECTED"
	ErrBlocked      = "BLOCKED"

	// Group authorization errors
	ErrNotAMember           = "NOT_A_MEMBER"
	ErrNotAnAdmin           = "NOT_AN_ADMIN"
	ErrMembershipCapReached = "MEMBERSHIP_CAP_EXCEEDED"

	// Message lifecycle errors
	ErrWindowExpired = "WINDOW_EXPIRED"

	// Encryption errors
	ErrKeyUnavailable = "KEY_UNAVAILABLE"

	// User-specific errors
	ErrUserNotFound = "USER_NOT_FOUND"

	// Actor communication errors
	ErrActorTimeout    = "ACTOR_TIMEOUT"
	ErrActorNotFound   = "ACTOR_NOT_FOUND"
	ErrMessageRejected = "MESSAGE_REJECTED"

	// Rate limiting
	ErrTooManyRequests = "TOO_MANY_REQUESTS"

	ErrDatabase = "database_error"
)

// Error creation helper functions
func NewAppError(code string, message string, originalErr error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Origin:  originalErr,
	}
}

// Specific error creators for common cases
func NewUserNotFoundError(userID string) *AppError {
	return &AppError{
		Code:    ErrUserNotFound,
		Message: "User not found: " + userID,
	}
}

func NewNotConnectedError() *AppError {
	return &AppError{
		Code:    ErrNotConnected,
		Message: "Users are not connected",
	}
}

func NewBlockedError() *AppError {
	return &AppError{
		Code:    ErrBlocked,
		Message: "Messaging is blocked between these users",
	}
}

func NewNotAMemberError(groupID string) *AppError {
	return &AppError{
		Code:    ErrNotAMember,
		Message: "Not a member of group: " + groupID,
	}
}

func NewNotAnAdminError(groupID string) *AppError {
	return &AppError{
		Code:    ErrNotAnAdmin,
		Message: "Admin role required for group: " + groupID,
	}
}

func NewMembershipCapError(cap int, requested int) *AppError {
	return &AppError{
		Code:    ErrMembershipCapReached,
		Message: fmt.Sprintf("Group membership cap exceeded. Cap: %d, Requested: %d", cap, requested),
	}
}

func NewKeyUnavailableError(userID string) *AppError {
	return &AppError{
		Code:    ErrKeyUnavailable,
		Message: "No usable public key for user: " + userID,
	}
}

func NewActorTimeoutError(actorName string) *AppError {
	return &AppError{
		Code:    ErrActorTimeout,
		Message: "Actor communication timeout: " + actorName,
	}
}

// Helper method to check if an error is of a specific type
func IsErrorCode(err error, code string) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == code
	}
	return false
}

// Helper method to check if an error is related to authentication
func IsAuthError(err error) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == ErrUnauthorized ||
			appErr.Code == ErrForbidden ||
			appErr.Code == ErrInvalidToken
	}
	return false
}

// AppErrorToHTTPStatus converts an AppError code to an HTTP status code.
func AppErrorToHTTPStatus(errorCode string) int {
	switch errorCode {
	case ErrNotFound, ErrUserNotFound, ErrActorNotFound:
		return 404 // http.StatusNotFound
	case ErrInvalidInput, ErrMembershipCapReached:
		return 400 // http.StatusBadRequest
	case ErrUnauthorized, ErrInvalidToken:
		return 401 // http.StatusUnauthorized
	case ErrForbidden, ErrNotConnected, ErrBlocked, ErrNotAMember, ErrNotAnAdmin, ErrWindowExpired:
		return 403 // http.StatusForbidden
	case ErrDuplicate:
		return 409 // http.StatusConflict
	case ErrKeyUnavailable:
		return 424 // http.StatusFailedDependency
	case ErrTooManyRequests:
		return 429 // http.StatusTooManyRequests
	case ErrDatabase, ErrActorTimeout, ErrMessageRejected:
		return 500 // http.StatusInternalServerError
	default:
		return 500 // http.StatusInternalServerError for unknown errors
	}
}
