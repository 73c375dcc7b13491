package repository

import (
	"errors"
	"fmt"

	"github.com/okian/finsight/internal/domain/model"
)

// Sentinel kinds for repository errors.
var (
	ErrInvalidLimit = fmt.Errorf("%w: invalid limit", model.ErrValidation)
	ErrClosed       = errors.New("store closed")
)

// ValidateAllocation checks the percent range shared by every store.
func ValidateAllocation(ticker string, percent float64) error {
	if ticker == "" {
		return fmt.Errorf("%w: ticker is required", model.ErrValidation)
	}
	if percent < 0 || percent > 100 {
		return fmt.Errorf("%w: allocation_percent must be within [0,100]", model.ErrValidation)
	}
	return nil
}
