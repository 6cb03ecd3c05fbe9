package domain

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// 目标函数在非法参数区域的惩罚值
const infeasible = 1e100

// ForecastConfig 波动率预测参数
type ForecastConfig struct {
	Order           ModelOrder `json:"order"`
	MinObservations int        `json:"min_observations"`
	Horizon         int        `json:"horizon"`
	PeriodsPerYear  float64    `json:"periods_per_year"`
	ConfidenceLevel float64    `json:"confidence_level"`
	MaxIterations   int        `json:"max_iterations"`
}

// DefaultForecastConfig AR(1)-GARCH(1,1)，至少 30 个观测
func DefaultForecastConfig() ForecastConfig {
	return ForecastConfig{
		Order:           ModelOrder{AR: 1, P: 1, Q: 1},
		MinObservations: 30,
		Horizon:         10,
		PeriodsPerYear:  252,
		ConfidenceLevel: 0.95,
		MaxIterations:   5000,
	}
}

// Validate 校验预测参数
func (c ForecastConfig) Validate() error {
	o := c.Order
	if o.AR < 0 || o.AR > 1 {
		return fmt.Errorf("%w: ar order %d (supported: 0, 1)", ErrInvalidOptions, o.AR)
	}
	if o.Q < 1 || o.P < 0 || o.P+o.Q > 6 {
		return fmt.Errorf("%w: garch order (%d,%d)", ErrInvalidOptions, o.P, o.Q)
	}
	if c.MinObservations < o.AR+o.P+o.Q+3 {
		return fmt.Errorf("%w: min observations %d too small for order %+v", ErrInvalidOptions, c.MinObservations, o)
	}
	if c.Horizon < 1 {
		return fmt.Errorf("%w: horizon %d", ErrInvalidOptions, c.Horizon)
	}
	if !(c.PeriodsPerYear > 0) {
		return fmt.Errorf("%w: periods per year %v", ErrInvalidOptions, c.PeriodsPerYear)
	}
	if !(c.ConfidenceLevel > 0 && c.ConfidenceLevel < 1) {
		return fmt.Errorf("%w: confidence level %v", ErrInvalidOptions, c.ConfidenceLevel)
	}
	if c.MaxIterations < 1 {
		return fmt.Errorf("%w: max iterations %d", ErrInvalidOptions, c.MaxIterations)
	}
	return nil
}

// Forecast 以极大似然拟合 AR-GARCH 模型并预测未来波动率
func Forecast(ctx context.Context, returns []float64, cfg ForecastConfig) (ForecastResult, error) {
	if err := cfg.Validate(); err != nil {
		return ForecastResult{}, err
	}
	if len(returns) < cfg.MinObservations {
		return ForecastResult{}, fmt.Errorf("%w: %d observations, need at least %d", ErrInsufficientData, len(returns), cfg.MinObservations)
	}
	for i, r := range returns {
		if math.IsNaN(r) || math.IsInf(r, 0) {
			return ForecastResult{}, fmt.Errorf("%w: return %d is %v", ErrInvalidInput, i, r)
		}
	}

	scale := stat.StdDev(returns, nil)
	if !(scale > 0) {
		return ForecastResult{}, fmt.Errorf("%w: returns have zero variance", ErrInvalidInput)
	}
	// 标准化后拟合，避免不同量级参数拖慢单纯形
	x := make([]float64, len(returns))
	for i, r := range returns {
		x[i] = r / scale
	}

	m := garchModel{order: cfg.Order, data: x}
	problem := optimize.Problem{
		Func: func(theta []float64) float64 {
			if ctx.Err() != nil {
				return infeasible
			}
			return m.negLogLikelihood(m.unpack(theta))
		},
	}
	settings := &optimize.Settings{MajorIterations: cfg.MaxIterations}
	res, err := optimize.Minimize(problem, m.initial(), settings, &optimize.NelderMead{})
	if err != nil && res == nil {
		return ForecastResult{}, fmt.Errorf("garch maximum likelihood: %w", err)
	}
	if cerr := ctx.Err(); cerr != nil {
		return ForecastResult{}, fmt.Errorf("garch maximum likelihood: %w", cerr)
	}

	fitted := m.unpack(res.X)
	nll := m.negLogLikelihood(fitted)
	converged := err == nil && nll < infeasible &&
		(res.Status == optimize.Success || res.Status == optimize.FunctionConvergence || res.Status == optimize.MethodConverge)

	params := fitted.rescale(scale)
	variances := m.forecastVariances(fitted, cfg.Horizon)

	series := make([]float64, len(variances))
	mean := 0.0
	for i, v := range variances {
		v *= scale * scale
		series[i] = math.Sqrt(v * cfg.PeriodsPerYear)
		mean += v
	}
	mean /= float64(len(variances))
	forecast := math.Sqrt(mean * cfg.PeriodsPerYear)

	n := len(returns)
	return ForecastResult{
		ForecastedVolatility: forecast,
		Series:               series,
		Order:                cfg.Order,
		Params:               params,
		LogLikelihood:        -nll - float64(m.effective())*math.Log(scale),
		ConfidenceInterval:   chiSquareInterval(forecast, n, cfg.ConfidenceLevel),
		HistoricalVolatility: scale * math.Sqrt(cfg.PeriodsPerYear),
		Observations:         n,
		Converged:            converged,
	}, nil
}

// chiSquareInterval 以 n-1 自由度卡方分布给出波动率置信区间
func chiSquareInterval(vol float64, n int, level float64) ConfidenceInterval {
	df := float64(n - 1)
	chi := distuv.ChiSquared{K: df}
	alpha := 1 - level
	return ConfidenceInterval{
		Lower: vol * math.Sqrt(df/chi.Quantile(1-alpha/2)),
		Upper: vol * math.Sqrt(df/chi.Quantile(alpha/2)),
		Level: level,
	}
}

// garchModel 对标准化收益的 AR-GARCH 似然
type garchModel struct {
	order ModelOrder
	data  []float64
}

// 参数向量：mu, [phi 原始值], log ω, α 原始值..., β 原始值...
func (m garchModel) initial() []float64 {
	o := m.order
	theta := []float64{stat.Mean(m.data, nil)}
	if o.AR == 1 {
		theta = append(theta, 0)
	}
	// 持续度 0.9，α 合计 0.05，无条件方差约为 1
	persistence := 0.9
	theta = append(theta, math.Log(1-persistence))
	denom := 1 / (1 - persistence)
	alpha := 0.05
	beta := persistence - alpha
	if o.P == 0 {
		alpha = persistence
	}
	for i := 0; i < o.Q; i++ {
		theta = append(theta, math.Log(alpha/float64(o.Q)*denom))
	}
	for j := 0; j < o.P; j++ {
		theta = append(theta, math.Log(beta/float64(o.P)*denom))
	}
	return theta
}

func (m garchModel) unpack(theta []float64) GARCHParams {
	o := m.order
	p := GARCHParams{Mu: theta[0]}
	k := 1
	if o.AR == 1 {
		p.Phi = math.Tanh(theta[k])
		k++
	}
	p.Omega = math.Exp(theta[k])
	k++

	weights := theta[k:]
	denom := 1.0
	for _, w := range weights {
		denom += math.Exp(w)
	}
	p.Alpha = make([]float64, o.Q)
	p.Beta = make([]float64, o.P)
	for i := 0; i < o.Q; i++ {
		p.Alpha[i] = math.Exp(weights[i]) / denom
	}
	for j := 0; j < o.P; j++ {
		p.Beta[j] = math.Exp(weights[o.Q+j]) / denom
	}
	return p
}

// effective 参与似然的观测数
func (m garchModel) effective() int { return len(m.data) - m.order.AR }

// filter 返回残差与条件方差序列
func (m garchModel) filter(p GARCHParams) ([]float64, []float64) {
	ar := m.order.AR
	n := m.effective()
	eps := make([]float64, n)
	for t := 0; t < n; t++ {
		mean := p.Mu
		if ar == 1 {
			mean += p.Phi * m.data[t]
		}
		eps[t] = m.data[t+ar] - mean
	}

	// 样本期之前的方差与残差平方以样本方差代替
	init := 0.0
	for _, e := range eps {
		init += e * e
	}
	init /= float64(n)

	sigma2 := make([]float64, n)
	for t := 0; t < n; t++ {
		v := p.Omega
		for i, a := range p.Alpha {
			if s := t - i - 1; s >= 0 {
				v += a * eps[s] * eps[s]
			} else {
				v += a * init
			}
		}
		for j, b := range p.Beta {
			if s := t - j - 1; s >= 0 {
				v += b * sigma2[s]
			} else {
				v += b * init
			}
		}
		sigma2[t] = v
	}
	return eps, sigma2
}

func (m garchModel) negLogLikelihood(p GARCHParams) float64 {
	eps, sigma2 := m.filter(p)
	nll := 0.0
	for t := range eps {
		v := sigma2[t]
		if !(v > 0) || math.IsInf(v, 0) {
			return infeasible
		}
		nll += 0.5 * (math.Log(2*math.Pi) + math.Log(v) + eps[t]*eps[t]/v)
	}
	if math.IsNaN(nll) || math.IsInf(nll, 0) {
		return infeasible
	}
	return nll
}

// forecastVariances 递推 h 步条件方差期望
func (m garchModel) forecastVariances(p GARCHParams, horizon int) []float64 {
	eps, sigma2 := m.filter(p)
	n := len(eps)
	// 已知部分：残差平方与方差；未来期的残差平方期望等于方差预测
	e2 := make([]float64, n, n+horizon)
	for t, e := range eps {
		e2[t] = e * e
	}
	s2 := append(make([]float64, 0, n+horizon), sigma2...)

	out := make([]float64, horizon)
	for h := 0; h < horizon; h++ {
		t := n + h
		v := p.Omega
		for i, a := range p.Alpha {
			if s := t - i - 1; s >= 0 {
				v += a * e2[s]
			}
		}
		for j, b := range p.Beta {
			if s := t - j - 1; s >= 0 {
				v += b * s2[s]
			}
		}
		s2 = append(s2, v)
		e2 = append(e2, v)
		out[h] = v
	}
	return out
}

// rescale 将标准化数据上的参数换算回原始收益量纲
func (p GARCHParams) rescale(scale float64) GARCHParams {
	return GARCHParams{
		Mu:    p.Mu * scale,
		Phi:   p.Phi,
		Omega: p.Omega * scale * scale,
		Alpha: append([]float64(nil), p.Alpha...),
		Beta:  append([]float64(nil), p.Beta...),
	}
}
