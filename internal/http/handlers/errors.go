package handlers

import "errors"

var (
	errUnauthenticated = errors.New("missing or invalid token")
	errInvalidLessonID = errors.New("invalid lesson id")
)
