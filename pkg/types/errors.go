package types

import "errors"

var (
	// ErrEmptyHostPort 空地址
	ErrEmptyHostPort = errors.New("empty host:port")

	// ErrInvalidHostPort 地址格式无效
	ErrInvalidHostPort = errors.New("invalid host:port")
)
