package config

import "errors"

// ErrInvalidConfig wraps every Validate failure; ErrLoadConfig wraps file,
// env and unmarshal failures in Load.
var (
	ErrInvalidConfig = errors.New("invalid config")
	ErrLoadConfig    = errors.New("load config failed")
)
