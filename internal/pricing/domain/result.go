package domain

// PricingResult 单次定价结果
type PricingResult struct {
	Price          float64 `json:"price"`
	StandardError  float64 `json:"standard_error,omitempty"` // 仅蒙特卡洛
	Method         Method  `json:"method"`
	PathsUsed      int     `json:"paths_used,omitempty"`
	PathsRequested int     `json:"paths_requested,omitempty"`
	Steps          int     `json:"steps,omitempty"`
	// Converged 为 false 表示模拟被提前取消，精度低于配置
	Converged bool `json:"converged"`
}

// GreekSource 希腊字母来源
type GreekSource string

const (
	GreekSourceClosedForm       GreekSource = "CLOSED_FORM"
	GreekSourceFiniteDifference GreekSource = "FINITE_DIFFERENCE"
)

// GreekSet 希腊字母
// Vega/Rho 以 1.00 的波动率/利率变化计，Theta 为每年的时间衰减
type GreekSet struct {
	Delta  float64     `json:"delta"`
	Gamma  float64     `json:"gamma"`
	Vega   float64     `json:"vega"`
	Theta  float64     `json:"theta"`
	Rho    float64     `json:"rho"`
	Source GreekSource `json:"source"`
}

// CalibrationResult 隐含波动率反解结果
type CalibrationResult struct {
	ImpliedVolatility float64 `json:"implied_volatility"`
	Residual          float64 `json:"residual"`
	Iterations        int     `json:"iterations"`
	Converged         bool    `json:"converged"`
	Method            Method  `json:"method"`
}

// ModelOrder 时间序列模型阶数：AR 均值阶数，GARCH(P,Q)
type ModelOrder struct {
	AR int `json:"ar"`
	P  int `json:"p"`
	Q  int `json:"q"`
}

// GARCHParams 拟合得到的模型参数
type GARCHParams struct {
	Mu    float64   `json:"mu"`
	Phi   float64   `json:"phi"`
	Omega float64   `json:"omega"`
	Alpha []float64 `json:"alpha"`
	Beta  []float64 `json:"beta"`
}

// Persistence α 与 β 之和
func (p GARCHParams) Persistence() float64 {
	s := 0.0
	for _, a := range p.Alpha {
		s += a
	}
	for _, b := range p.Beta {
		s += b
	}
	return s
}

// ConfidenceInterval 置信区间
type ConfidenceInterval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Level float64 `json:"level"`
}

// ForecastResult 波动率预测结果
type ForecastResult struct {
	ForecastedVolatility float64            `json:"forecasted_volatility"` // 年化
	Series               []float64          `json:"series"`                // 各期年化波动率
	Order                ModelOrder         `json:"order"`
	Params               GARCHParams        `json:"params"`
	LogLikelihood        float64            `json:"log_likelihood"`
	ConfidenceInterval   ConfidenceInterval `json:"confidence_interval"`
	HistoricalVolatility float64            `json:"historical_volatility"`
	Observations         int                `json:"observations"`
	Converged            bool               `json:"converged"`
}
