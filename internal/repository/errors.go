package repository

import "errors"

var (
	ErrNotFound        = errors.New("record not found")
	ErrInvalidID       = errors.New("identifier must not be empty")
	ErrForeignChatRoom = errors.New("chat room belongs to another guest")
	ErrDuplicate       = errors.New("record already exists")
	// ErrNotModified is returned when a conditional update matched nothing.
	ErrNotModified = errors.New("conditional update matched no record")
)
