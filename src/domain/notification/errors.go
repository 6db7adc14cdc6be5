package notification

import "errors"

var (
	ErrInvalidEvent   = errors.New("invalid event")
	ErrDispatchFailed = errors.New("failed to dispatch events")
	ErrQueueFull      = errors.New("notification queue full")
)
