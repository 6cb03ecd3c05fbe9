package domain

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// 低于该值的 σ√T 视为确定性远期
const degenerateVolTime = 1e-12

// BlackScholesInput Black-Scholes-Merton 模型输入
type BlackScholesInput struct {
	S float64 // 标的资产价格
	K float64 // 执行价格
	T float64 // 到期时间 (年)
	R float64 // 无风险利率
	Q float64 // 连续股息率
	V float64 // 波动率
}

func newBlackScholesInput(inst Instrument, mkt MarketSnapshot, vol float64) BlackScholesInput {
	return BlackScholesInput{
		S: mkt.Spot,
		K: inst.Strike,
		T: inst.Maturity,
		R: mkt.RiskFreeRate,
		Q: mkt.DividendYield,
		V: vol,
	}
}

func (in BlackScholesInput) d1d2() (float64, float64) {
	sqrtT := math.Sqrt(in.T)
	d1 := (math.Log(in.S/in.K) + (in.R-in.Q+0.5*in.V*in.V)*in.T) / (in.V * sqrtT)
	return d1, d1 - in.V*sqrtT
}

func (in BlackScholesInput) degenerate() bool {
	return in.V*math.Sqrt(in.T) < degenerateVolTime
}

// BlackScholes 计算欧式期权价格
func BlackScholes(optionType OptionType, in BlackScholesInput) float64 {
	dq := math.Exp(-in.Q * in.T)
	dr := math.Exp(-in.R * in.T)

	if in.degenerate() {
		fwd := in.S*dq - in.K*dr
		if optionType == OptionTypeCall {
			return math.Max(fwd, 0)
		}
		return math.Max(-fwd, 0)
	}

	d1, d2 := in.d1d2()
	if optionType == OptionTypeCall {
		return in.S*dq*normCdf(d1) - in.K*dr*normCdf(d2)
	}
	return in.K*dr*normCdf(-d2) - in.S*dq*normCdf(-d1)
}

// BlackScholesGreeks 计算解析希腊字母
func BlackScholesGreeks(optionType OptionType, in BlackScholesInput) GreekSet {
	dq := math.Exp(-in.Q * in.T)
	dr := math.Exp(-in.R * in.T)
	g := GreekSet{Source: GreekSourceClosedForm}

	if in.degenerate() {
		// 到期收益确定：只剩下远期内在价值
		fwd := in.S*dq - in.K*dr
		switch {
		case optionType == OptionTypeCall && fwd > 0:
			g.Delta = dq
			g.Theta = in.Q*in.S*dq - in.R*in.K*dr
			g.Rho = in.K * in.T * dr
		case optionType == OptionTypePut && fwd < 0:
			g.Delta = -dq
			g.Theta = in.R*in.K*dr - in.Q*in.S*dq
			g.Rho = -in.K * in.T * dr
		}
		return g
	}

	sqrtT := math.Sqrt(in.T)
	d1, d2 := in.d1d2()
	pdf := normPdf(d1)

	g.Gamma = dq * pdf / (in.S * in.V * sqrtT)
	g.Vega = in.S * dq * pdf * sqrtT
	decay := -in.S * dq * pdf * in.V / (2 * sqrtT)

	if optionType == OptionTypeCall {
		g.Delta = dq * normCdf(d1)
		g.Theta = decay - in.R*in.K*dr*normCdf(d2) + in.Q*in.S*dq*normCdf(d1)
		g.Rho = in.K * in.T * dr * normCdf(d2)
	} else {
		g.Delta = -dq * normCdf(-d1)
		g.Theta = decay + in.R*in.K*dr*normCdf(-d2) - in.Q*in.S*dq*normCdf(-d1)
		g.Rho = -in.K * in.T * dr * normCdf(-d2)
	}
	return g
}

// GeometricAsianPrice 离散几何平均亚式期权闭式解，fixings 个等距观察点（不含期初）
func GeometricAsianPrice(optionType OptionType, in BlackScholesInput, fixings int) float64 {
	n := float64(fixings)
	dr := math.Exp(-in.R * in.T)

	mu := math.Log(in.S) + (in.R-in.Q-0.5*in.V*in.V)*in.T*(n+1)/(2*n)
	sigma := in.V * math.Sqrt(in.T*(n+1)*(2*n+1)/(6*n*n))

	if sigma < degenerateVolTime {
		g := math.Exp(mu)
		if optionType == OptionTypeCall {
			return dr * math.Max(g-in.K, 0)
		}
		return dr * math.Max(in.K-g, 0)
	}

	fwd := math.Exp(mu + 0.5*sigma*sigma)
	d2 := (mu - math.Log(in.K)) / sigma
	d1 := d2 + sigma
	if optionType == OptionTypeCall {
		return dr * (fwd*normCdf(d1) - in.K*normCdf(d2))
	}
	return dr * (in.K*normCdf(-d2) - fwd*normCdf(-d1))
}

// AnalyticalPricer 欧式普通期权闭式定价
type AnalyticalPricer struct{}

func (AnalyticalPricer) Method() Method { return MethodAnalytical }

func (AnalyticalPricer) supports(inst Instrument) error {
	if inst.Style != StyleEuropean || inst.Payoff != PayoffVanilla {
		return fmt.Errorf("%w: analytical pricer needs european vanilla, got %s %s", ErrUnsupportedInstrument, inst.Style, inst.Payoff)
	}
	return nil
}

// Price 闭式定价
func (p AnalyticalPricer) Price(_ context.Context, inst Instrument, mkt MarketSnapshot, _ Options) (PricingResult, error) {
	vol, err := p.prepare(inst, mkt)
	if err != nil {
		return PricingResult{}, err
	}
	return PricingResult{
		Price:     BlackScholes(inst.OptionType, newBlackScholesInput(inst, mkt, vol)),
		Method:    MethodAnalytical,
		Converged: true,
	}, nil
}

// ClosedFormGreeks 解析希腊字母
func (p AnalyticalPricer) ClosedFormGreeks(inst Instrument, mkt MarketSnapshot) (GreekSet, error) {
	vol, err := p.prepare(inst, mkt)
	if err != nil {
		return GreekSet{}, err
	}
	return BlackScholesGreeks(inst.OptionType, newBlackScholesInput(inst, mkt, vol)), nil
}

func (p AnalyticalPricer) prepare(inst Instrument, mkt MarketSnapshot) (float64, error) {
	if err := inst.Validate(); err != nil {
		return 0, err
	}
	if err := p.supports(inst); err != nil {
		return 0, err
	}
	if err := mkt.Validate(); err != nil {
		return 0, err
	}
	return mkt.requireVol()
}

// normCdf 标准正态分布累积分布函数
func normCdf(x float64) float64 {
	return distuv.UnitNormal.CDF(x)
}

// normPdf 标准正态分布概率密度函数
func normPdf(x float64) float64 {
	return distuv.UnitNormal.Prob(x)
}
