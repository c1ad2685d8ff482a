package domain

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("forbidden")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrUnavailable      = errors.New("service unavailable")
	ErrNotOwner         = errors.New("you are not the owner of this watch party")
	ErrPartyClosed      = errors.New("watch party is closed")
	ErrNotReleased      = errors.New("video is not yet released")
	ErrUnknownEventKind = errors.New("unknown event kind")
	ErrEmptyMessage     = errors.New("message content is empty")
)
