package svc

import "errors"

// ErrProviderInitFailed means the upstream provider could not be built.
var ErrProviderInitFailed = errors.New("quote provider initialization failed")

// ErrStorageInitFailed means a configured store could not be opened.
var ErrStorageInitFailed = errors.New("storage initialization failed")
