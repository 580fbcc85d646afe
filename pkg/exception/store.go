package exception

import "github.com/yanun0323/errors"

var (
	ErrStoreNotConnected = errors.New("store: not connected")
	ErrRunNotFound       = errors.New("store: run not found")
)
