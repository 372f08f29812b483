package repository

import "errors"

// ErrDuplicateEmail indicates the email unique constraint rejected a write.
var ErrDuplicateEmail = errors.New("repository: duplicate email")
