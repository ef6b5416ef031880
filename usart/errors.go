package usart

import "errors"

var (
	// Init
	ErrUnachievableBaud = errors.New("unachievable_baud")

	// Application-side io
	ErrQueueFull   = errors.New("queue_full")
	ErrBufferEmpty = errors.New("buffer_empty")
)
