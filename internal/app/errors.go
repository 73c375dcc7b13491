package service

import (
	"errors"
	"fmt"

	"github.com/okian/finsight/internal/adapters/http/api"
)

// Sentinel errors returned by the Service.
var (
	ErrNotStarted  = errors.New("service not started")
	ErrNoGenerator = fmt.Errorf("%w: language model not configured", api.ErrUnavailable)
	ErrNoGateway   = fmt.Errorf("%w: market data not configured", api.ErrUnavailable)
)
