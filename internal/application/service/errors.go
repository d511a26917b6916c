package service

import "errors"

// ErrSearchUnsupported is returned when the configured provider cannot search.
var ErrSearchUnsupported = errors.New("provider does not support search")
