package domain

import (
	"context"
	"fmt"
	"math"
)

// LatticePricer Cox-Ross-Rubinstein 重组二叉树，支持美式提前行权
// 误差随步数以 O(1/steps) 收敛
type LatticePricer struct{}

func (LatticePricer) Method() Method { return MethodLattice }

// crrParams 单步参数
type crrParams struct {
	dt, u, d, p, disc float64
}

func newCRRParams(mkt MarketSnapshot, vol, maturity float64, steps int) (crrParams, error) {
	dt := maturity / float64(steps)
	u := math.Exp(vol * math.Sqrt(dt))
	d := 1 / u
	p := (math.Exp((mkt.RiskFreeRate-mkt.DividendYield)*dt) - d) / (u - d)
	// NaN 同样不满足区间条件
	if !(p >= 0 && p <= 1) {
		return crrParams{}, instability("crr risk-neutral probability outside [0,1]",
			"u", u, "d", d, "p", p, "dt", dt, "volatility", vol)
	}
	return crrParams{dt: dt, u: u, d: d, p: p, disc: math.Exp(-mkt.RiskFreeRate * dt)}, nil
}

// Price 反向归纳定价
func (LatticePricer) Price(ctx context.Context, inst Instrument, mkt MarketSnapshot, opts Options) (PricingResult, error) {
	if err := inst.Validate(); err != nil {
		return PricingResult{}, err
	}
	if inst.Payoff != PayoffVanilla {
		return PricingResult{}, fmt.Errorf("%w: lattice pricer does not handle %s payoffs", ErrUnsupportedInstrument, inst.Payoff)
	}
	if err := mkt.Validate(); err != nil {
		return PricingResult{}, err
	}
	steps := opts.Steps
	if steps < 1 {
		return PricingResult{}, fmt.Errorf("%w: %d", ErrInvalidStepCount, steps)
	}
	vol, err := mkt.requireVol()
	if err != nil {
		return PricingResult{}, err
	}

	cp, err := newCRRParams(mkt, vol, inst.Maturity, steps)
	if err != nil {
		return PricingResult{}, err
	}
	pu := cp.disc * cp.p
	pd := cp.disc * (1 - cp.p)
	uu := cp.u * cp.u

	// values[j] 为 j 次上升后的节点价值
	values := make([]float64, steps+1)
	s := mkt.Spot * math.Pow(cp.d, float64(steps))
	for j := 0; j <= steps; j++ {
		values[j] = inst.Intrinsic(s)
		s *= uu
	}

	american := inst.Style == StyleAmerican
	for i := steps - 1; i >= 0; i-- {
		if i%64 == 0 {
			if err := ctx.Err(); err != nil {
				return PricingResult{}, fmt.Errorf("lattice backward induction: %w", err)
			}
		}
		s = mkt.Spot * math.Pow(cp.d, float64(i))
		for j := 0; j <= i; j++ {
			v := pu*values[j+1] + pd*values[j]
			// 相等时保留持有价值
			if american {
				if ex := inst.Intrinsic(s); ex > v {
					v = ex
				}
				s *= uu
			}
			values[j] = v
		}
	}

	return PricingResult{
		Price:     values[0],
		Method:    MethodLattice,
		Steps:     steps,
		Converged: true,
	}, nil
}

// MinStableVolatility 使 CRR 概率落在 [0,1] 的最小波动率：σ ≥ |r-q|·√dt
func MinStableVolatility(mkt MarketSnapshot, maturity float64, steps int) float64 {
	dt := maturity / float64(steps)
	return math.Abs(mkt.RiskFreeRate-mkt.DividendYield)*math.Sqrt(dt)*(1+1e-9) + 1e-12
}
