package redis

import "errors"

var (
	ErrAddrRequired = errors.New("redis: addr is required")
)
