package port

import "errors"

var ErrCacheMiss = errors.New("cache miss")
