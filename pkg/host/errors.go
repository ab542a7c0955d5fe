package host

import "errors"

// Configuration errors, returned by New and never retried
var (
	ErrMissingHostID    = errors.New("host id is required")
	ErrMissingClusterID = errors.New("cluster id is required for this host")
	ErrInvalidMode      = errors.New("invalid operating mode")
	ErrNilStore         = errors.New("distributed store is required")
	ErrNilAPI           = errors.New("orchestration api is required")
)
