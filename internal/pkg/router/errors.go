package router

import "errors"

var errNotConfigured = errors.New("not configured")
