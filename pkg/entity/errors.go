package entity

import "errors"

// Store errors shared by every EntityStore implementation
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)
