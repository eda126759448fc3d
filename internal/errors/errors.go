package errors

import "fmt"

var (
	ErrInvalidDataset     = fmt.Errorf("invalid dataset")
	ErrInvalidInput       = fmt.Errorf("invalid input")
	ErrModelUnavailable   = fmt.Errorf("model unavailable")
	ErrTrainingInProgress = fmt.Errorf("training already in progress")

	ErrUserNotFound       = fmt.Errorf("user not found")
	ErrEmailTaken         = fmt.Errorf("email already registered")
	ErrUsernameTaken      = fmt.Errorf("username already taken")
	ErrInvalidCredentials = fmt.Errorf("invalid email or password")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")
	ErrUnauthorized       = fmt.Errorf("unauthorized")
	ErrScanNotFound       = fmt.Errorf("scan not found")

	ErrRateLimited    = fmt.Errorf("too many requests")
	ErrThrottleClosed = fmt.Errorf("throttle is not running")
)
