package application

import (
	"context"
	"errors"

	"github.com/wyfcoding/pricingrisk/internal/pricing/domain"
)

// ErrRepositoryUnavailable 未配置持久化
var ErrRepositoryUnavailable = errors.New("repository not configured")

var errorCodes = []struct {
	err  error
	code string
}{
	{domain.ErrInvalidInstrument, "INVALID_INSTRUMENT"},
	{domain.ErrInvalidMarket, "INVALID_MARKET"},
	{domain.ErrInvalidStepCount, "INVALID_STEP_COUNT"},
	{domain.ErrInvalidPathCount, "INVALID_PATH_COUNT"},
	{domain.ErrInvalidOptions, "INVALID_OPTIONS"},
	{domain.ErrInvalidInput, "INVALID_INPUT"},
	{domain.ErrUnsupportedInstrument, "UNSUPPORTED_INSTRUMENT"},
	{domain.ErrMissingVolatility, "MISSING_VOLATILITY"},
	{domain.ErrGreekUnavailable, "GREEK_UNAVAILABLE"},
	{domain.ErrNumericalInstability, "NUMERICAL_INSTABILITY"},
	{domain.ErrCalibrationNotConverged, "CALIBRATION_NOT_CONVERGED"},
	{domain.ErrInsufficientData, "INSUFFICIENT_DATA"},
	{domain.ErrNotFound, "NOT_FOUND"},
	{ErrRepositoryUnavailable, "REPOSITORY_UNAVAILABLE"},
	{context.Canceled, "CANCELLED"},
	{context.DeadlineExceeded, "DEADLINE_EXCEEDED"},
}

// ErrorCode 将错误映射为稳定的错误码
func ErrorCode(err error) string {
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "INTERNAL"
}
