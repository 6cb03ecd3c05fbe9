package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/pricingrisk/internal/pricing/application"
	"github.com/wyfcoding/pricingrisk/pkg/logger"
)

// Response 统一响应体
type Response struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

var statusByCode = map[string]int{
	"INVALID_INSTRUMENT":        http.StatusBadRequest,
	"INVALID_MARKET":            http.StatusBadRequest,
	"INVALID_STEP_COUNT":        http.StatusBadRequest,
	"INVALID_PATH_COUNT":        http.StatusBadRequest,
	"INVALID_OPTIONS":           http.StatusBadRequest,
	"INVALID_INPUT":             http.StatusBadRequest,
	"UNSUPPORTED_INSTRUMENT":    http.StatusBadRequest,
	"MISSING_VOLATILITY":        http.StatusBadRequest,
	"GREEK_UNAVAILABLE":         http.StatusUnprocessableEntity,
	"NUMERICAL_INSTABILITY":     http.StatusUnprocessableEntity,
	"CALIBRATION_NOT_CONVERGED": http.StatusUnprocessableEntity,
	"INSUFFICIENT_DATA":         http.StatusUnprocessableEntity,
	"NOT_FOUND":                 http.StatusNotFound,
	"REPOSITORY_UNAVAILABLE":    http.StatusServiceUnavailable,
	"CANCELLED":                 http.StatusRequestTimeout,
	"DEADLINE_EXCEEDED":         http.StatusGatewayTimeout,
}

// StatusFor 错误对应的 HTTP 状态码
func StatusFor(err error) (int, string) {
	code := application.ErrorCode(err)
	if status, ok := statusByCode[code]; ok {
		return status, code
	}
	return http.StatusInternalServerError, code
}

func success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{Code: "OK", Data: data})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, Response{Code: "BAD_REQUEST", Message: err.Error()})
}

func fail(c *gin.Context, err error) {
	status, code := StatusFor(err)
	ctx := c.Request.Context()
	if status >= http.StatusInternalServerError && !errors.Is(err, context.Canceled) {
		logger.Error(ctx, "pricing request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, Response{Code: code, Message: err.Error()})
}
