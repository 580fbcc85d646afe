package exception

import "github.com/yanun0323/errors"

var (
	// ErrInvalidConfig marks configuration that cannot start a run. It is always fatal.
	ErrInvalidConfig = errors.New("config: invalid")
	ErrConfigFormat  = errors.New("config: unsupported format")
)
