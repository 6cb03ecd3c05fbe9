package domain

import (
	"context"
	"fmt"
	"math"
	"time"
)

// CalibrationConfig 隐含波动率求解参数
type CalibrationConfig struct {
	LowerBound    float64 `json:"lower_bound"`
	UpperBound    float64 `json:"upper_bound"`
	Tolerance     float64 `json:"tolerance"` // 价格残差
	MaxIterations int     `json:"max_iterations"`
}

// DefaultCalibrationConfig 区间 [1e-4, 5.0]，最多 100 次迭代，残差 1e-8
func DefaultCalibrationConfig() CalibrationConfig {
	return CalibrationConfig{LowerBound: 1e-4, UpperBound: 5.0, Tolerance: 1e-8, MaxIterations: 100}
}

// Validate 校验求解参数
func (c CalibrationConfig) Validate() error {
	if !(c.LowerBound >= 0) || !(c.UpperBound > c.LowerBound) {
		return fmt.Errorf("%w: bracket [%v, %v]", ErrInvalidOptions, c.LowerBound, c.UpperBound)
	}
	if !(c.Tolerance > 0) {
		return fmt.Errorf("%w: tolerance %v", ErrInvalidOptions, c.Tolerance)
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("%w: max iterations %d", ErrInvalidOptions, c.MaxIterations)
	}
	return nil
}

// ImpliedVolatility 由市场价格反解波动率
// 区间二分保证收敛，Newton 步（以 Vega 为导数）落在区间内时采用以加速。
// 达到迭代上限或被取消时返回 Converged=false 及残差，而非错误
func ImpliedVolatility(ctx context.Context, inst Instrument, mkt MarketSnapshot, marketPrice float64, opts Options, cfg CalibrationConfig) (CalibrationResult, error) {
	if err := inst.Validate(); err != nil {
		return CalibrationResult{}, err
	}
	mkt.Volatility = nil
	if err := mkt.Validate(); err != nil {
		return CalibrationResult{}, err
	}
	if err := cfg.Validate(); err != nil {
		return CalibrationResult{}, err
	}
	if math.IsNaN(marketPrice) || math.IsInf(marketPrice, 0) {
		return CalibrationResult{}, fmt.Errorf("%w: market price %v", ErrInvalidInput, marketPrice)
	}

	pricer := PricerFor(opts.Method, inst)
	if pricer.Method() == MethodMonteCarlo && opts.Seed == nil {
		opts = opts.WithSeed(uint64(time.Now().UnixNano()))
	}
	priceAt := func(v float64) (float64, error) {
		res, err := pricer.Price(ctx, inst, mkt.WithVolatility(v), opts)
		return res.Price, err
	}

	lo, hi := cfg.LowerBound, cfg.UpperBound
	if pricer.Method() == MethodLattice && opts.Steps > 0 {
		lo = math.Max(lo, MinStableVolatility(mkt, inst.Maturity, opts.Steps))
	}
	pLo, err := priceAt(lo)
	if err != nil {
		return CalibrationResult{}, err
	}
	pHi, err := priceAt(hi)
	if err != nil {
		return CalibrationResult{}, err
	}
	result := CalibrationResult{Method: pricer.Method()}

	switch {
	case math.Abs(pLo-marketPrice) <= cfg.Tolerance:
		result.ImpliedVolatility, result.Residual, result.Converged = lo, pLo-marketPrice, true
		return result, nil
	case math.Abs(pHi-marketPrice) <= cfg.Tolerance:
		result.ImpliedVolatility, result.Residual, result.Converged = hi, pHi-marketPrice, true
		return result, nil
	case marketPrice < pLo || marketPrice > pHi:
		return CalibrationResult{}, instability("implied volatility target outside bracket",
			"target", marketPrice, "lower", lo, "upper", hi, "price_lower", pLo, "price_upper", pHi)
	}

	sigma := initialGuess(inst, mkt, marketPrice, lo, hi)
	for result.Iterations < cfg.MaxIterations {
		if ctx.Err() != nil {
			return result, nil
		}
		result.Iterations++

		p, err := priceAt(sigma)
		if err != nil {
			if ctx.Err() != nil {
				return result, nil
			}
			return CalibrationResult{}, err
		}
		f := p - marketPrice
		result.ImpliedVolatility, result.Residual = sigma, f
		if math.Abs(f) <= cfg.Tolerance {
			result.Converged = true
			return result, nil
		}

		// 价格关于波动率单调递增
		if f > 0 {
			hi = sigma
		} else {
			lo = sigma
		}

		next := 0.5 * (lo + hi)
		vega, err := Vega(ctx, pricer, inst, mkt.WithVolatility(sigma), opts)
		if err == nil && vega > 1e-12 {
			if n := sigma - f/vega; n > lo && n < hi {
				next = n
			}
		}
		sigma = next
	}
	return result, nil
}

// initialGuess Brenner-Subrahmanyam 近似，落在区间外时取中点
func initialGuess(inst Instrument, mkt MarketSnapshot, price, lo, hi float64) float64 {
	g := math.Sqrt(2*math.Pi/inst.Maturity) * price / mkt.Spot
	if g > lo && g < hi {
		return g
	}
	return 0.5 * (lo + hi)
}
