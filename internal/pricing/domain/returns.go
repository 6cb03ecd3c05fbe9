package domain

import (
	"fmt"
	"math"
)

// SimpleReturns 相邻收盘价的百分比变化
func SimpleReturns(closes []float64) ([]float64, error) {
	if err := checkCloses(closes); err != nil {
		return nil, err
	}
	out := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		out[i-1] = closes[i]/closes[i-1] - 1
	}
	return out, nil
}

// LogReturns 相邻收盘价的对数收益
func LogReturns(closes []float64) ([]float64, error) {
	if err := checkCloses(closes); err != nil {
		return nil, err
	}
	out := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		out[i-1] = math.Log(closes[i] / closes[i-1])
	}
	return out, nil
}

func checkCloses(closes []float64) error {
	if len(closes) < 2 {
		return fmt.Errorf("%w: need at least two closes, got %d", ErrInsufficientData, len(closes))
	}
	for i, c := range closes {
		if !(c > 0) || math.IsInf(c, 0) {
			return fmt.Errorf("%w: close %d is %v", ErrInvalidInput, i, c)
		}
	}
	return nil
}
