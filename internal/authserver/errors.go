package authserver

import "errors"

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrUserExists        = errors.New("user already exists")
	ErrInvalidRefresh    = errors.New("invalid refresh token")
	ErrRefreshReused     = errors.New("refresh token reused")
	ErrInvalidResetToken = errors.New("invalid reset token")
)
