package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedInstrument 定价器与合约类型不匹配
	ErrUnsupportedInstrument = errors.New("unsupported instrument for pricing method")
	// ErrInvalidStepCount 二叉树步数非法
	ErrInvalidStepCount = errors.New("invalid lattice step count")
	// ErrInvalidPathCount 蒙特卡洛路径数非法
	ErrInvalidPathCount = errors.New("invalid monte carlo path count")
	// ErrNumericalInstability 数值不稳定（概率越界或求根区间无效）
	ErrNumericalInstability = errors.New("numerical instability")
	// ErrGreekUnavailable 扰动后的市场状态无法重新定价
	ErrGreekUnavailable = errors.New("greek unavailable")
	// ErrSimulationTruncated 模拟未完成请求的样本数
	ErrSimulationTruncated = errors.New("simulation truncated before requested paths")
	// ErrInsufficientData 样本数量不足
	ErrInsufficientData = errors.New("insufficient data")

	ErrInvalidInstrument       = errors.New("invalid instrument")
	ErrInvalidMarket           = errors.New("invalid market snapshot")
	ErrInvalidOptions          = errors.New("invalid pricing options")
	ErrInvalidInput            = errors.New("invalid input")
	ErrMissingVolatility       = errors.New("volatility absent and no market price to calibrate from")
	ErrCalibrationNotConverged = errors.New("volatility calibration did not converge")
	ErrNotFound                = errors.New("not found")
)

// NumericalInstabilityError 携带诊断数值的数值不稳定错误
type NumericalInstabilityError struct {
	Op          string
	Diagnostics map[string]float64
}

func (e *NumericalInstabilityError) Error() string {
	return fmt.Sprintf("%s: %s %v", ErrNumericalInstability, e.Op, e.Diagnostics)
}

func (e *NumericalInstabilityError) Unwrap() error { return ErrNumericalInstability }

func instability(op string, kv ...any) error {
	diag := make(map[string]float64, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		if v, ok := kv[i+1].(float64); ok {
			diag[key] = v
		}
	}
	return &NumericalInstabilityError{Op: op, Diagnostics: diag}
}

// GreekError 指明哪个希腊字母无法计算
type GreekError struct {
	Greek  string
	Reason string
	Err    error
}

func (e *GreekError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", ErrGreekUnavailable, e.Greek, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", ErrGreekUnavailable, e.Greek, e.Reason)
}

func (e *GreekError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrGreekUnavailable, e.Err}
	}
	return []error{ErrGreekUnavailable}
}
