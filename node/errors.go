package node

import "errors"

var (
	ErrNodeIDRequired       = errors.New("node ID is required")
	ErrClusterIDRequired    = errors.New("cluster ID is required")
	ErrAddressRequired      = errors.New("address is required")
	ErrPortRequired         = errors.New("port is required")
	ErrInvalidRoundPeriod   = errors.New("round period must be positive")
	ErrInvalidRoundTimeout  = errors.New("round timeout must be positive")
)
