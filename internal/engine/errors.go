package engine

import (
	"github.com/yanun0323/errors"

	"lobsim/pkg/exception"
)

var (
	// ErrSequenceRegression is fatal: the input stream went backwards.
	ErrSequenceRegression = errors.New("engine: global sequence regression")
	ErrInvalidConfig      = exception.ErrInvalidConfig
	ErrInvalidInput       = errors.New("engine: invalid input")
	ErrCrossedBook        = errors.New("engine: crossed book")
	ErrVenueRefused       = errors.New("engine: venue refused request")
)
