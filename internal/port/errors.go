package port

import "errors"

// Sentinel errors used across ports.
var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrUserNotFound   = errors.New("user not found")
	ErrUserExists     = errors.New("user already exists")
	ErrReportNotFound = errors.New("report not found")
	ErrReportNotReady = errors.New("report not ready")
	ErrInvalidInput   = errors.New("invalid input")
	ErrQueueFull      = errors.New("report queue full")
)
