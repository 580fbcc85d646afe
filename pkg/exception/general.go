package exception

import "github.com/yanun0323/errors"

// Shared errors classified with errors.Is across packages.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNilInstance     = errors.New("nil instance")
	ErrTypeUnsupported = errors.New("type unsupported")
)
