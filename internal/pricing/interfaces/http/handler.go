package http

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/wyfcoding/pricingrisk/internal/pricing/application"
	"github.com/wyfcoding/pricingrisk/internal/pricing/domain"
)

// PricingService 处理器依赖的应用服务，*application.PricingService 实现该接口
type PricingService interface {
	Price(ctx context.Context, cmd application.PriceCommand) (*domain.PricingReport, error)
	PricePortfolio(ctx context.Context, cmd application.BatchPriceCommand) *application.BatchReport
	ImpliedVolatility(ctx context.Context, cmd application.ImpliedVolCommand) (*domain.CalibrationResult, error)
	Forecast(ctx context.Context, cmd application.ForecastCommand) (*domain.ForecastResult, error)
	LatestCalibration(ctx context.Context, symbol string) (*domain.CalibrationRecord, error)
	CalibrationHistory(ctx context.Context, symbol string, limit int) ([]*domain.CalibrationRecord, error)
	GetReport(ctx context.Context, id string) (*domain.PricingReport, error)
	MarketSnapshot(ctx context.Context, symbol string) (domain.MarketSnapshot, error)
	Indicators(ctx context.Context, symbol string, cfg *domain.IndicatorConfig) (*domain.TechnicalIndicators, error)
	DefaultOptions() domain.Options
	DefaultForecastConfig() domain.ForecastConfig
}

// PricingHandler HTTP 处理器
type PricingHandler struct {
	svc PricingService
	// 单次请求的计算超时，0 表示不限制
	timeout time.Duration
}

// NewPricingHandler 创建 HTTP 处理器
func NewPricingHandler(svc PricingService, timeout time.Duration) *PricingHandler {
	return &PricingHandler{svc: svc, timeout: timeout}
}

// RegisterRoutes 注册路由
func (h *PricingHandler) RegisterRoutes(router gin.IRouter) {
	api := router.Group("/api/v1/pricing")
	{
		api.POST("/price", h.Price)
		api.POST("/greeks", h.Greeks)
		api.POST("/implied-vol", h.ImpliedVolatility)
		api.POST("/forecast", h.Forecast)
		api.POST("/portfolio", h.PricePortfolio)
		api.GET("/calibrations/:symbol", h.GetCalibration)
		api.GET("/reports/:id", h.GetReport)
		api.GET("/market/:symbol", h.GetMarket)
		api.GET("/market/:symbol/indicators", h.GetIndicators)
	}
}

// PriceRequest 定价请求，options 中未给出的字段取服务默认值
type PriceRequest struct {
	Instrument       domain.Instrument     `json:"instrument" binding:"required"`
	Market           domain.MarketSnapshot `json:"market" binding:"required"`
	Options          json.RawMessage       `json:"options,omitempty"`
	MarketPrice      *float64              `json:"market_price,omitempty"`
	AllowUnconverged bool                  `json:"allow_unconverged,omitempty"`
}

// PriceResponse 定价响应，price 为保留 8 位小数的十进制串
type PriceResponse struct {
	Price  decimal.Decimal       `json:"price"`
	Report *domain.PricingReport `json:"report"`
}

// PortfolioRequest 组合定价请求
type PortfolioRequest struct {
	BatchID string         `json:"batch_id"`
	Items   []PriceRequest `json:"items" binding:"required,min=1"`
}

// ImpliedVolRequest 隐含波动率请求
type ImpliedVolRequest struct {
	Instrument  domain.Instrument     `json:"instrument" binding:"required"`
	Market      domain.MarketSnapshot `json:"market" binding:"required"`
	MarketPrice float64               `json:"market_price" binding:"required"`
	Options     json.RawMessage       `json:"options,omitempty"`
}

// ForecastRequest 波动率预测请求
type ForecastRequest struct {
	Symbol  string          `json:"symbol"`
	Returns []float64       `json:"returns"`
	Closes  []float64       `json:"closes"`
	From    time.Time       `json:"from"`
	To      time.Time       `json:"to"`
	Config  json.RawMessage `json:"config,omitempty"`
}

func (h *PricingHandler) context(c *gin.Context) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), h.timeout)
}

// decodeOptions 以服务默认参数为底解码请求中的 options
func (h *PricingHandler) decodeOptions(raw json.RawMessage) (domain.Options, error) {
	opts := h.svc.DefaultOptions()
	if len(raw) == 0 {
		return opts, nil
	}
	if err := json.Unmarshal(raw, &opts); err != nil {
		return opts, fmt.Errorf("options: %w", err)
	}
	return opts, nil
}

func (h *PricingHandler) toCommand(req PriceRequest) (application.PriceCommand, error) {
	opts, err := h.decodeOptions(req.Options)
	if err != nil {
		return application.PriceCommand{}, err
	}
	return application.PriceCommand{
		Instrument:       req.Instrument,
		Market:           req.Market,
		Options:          &opts,
		MarketPrice:      req.MarketPrice,
		AllowUnconverged: req.AllowUnconverged,
	}, nil
}

// Price 单合约定价
func (h *PricingHandler) Price(c *gin.Context) {
	var req PriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cmd, err := h.toCommand(req)
	if err != nil {
		badRequest(c, err)
		return
	}

	ctx, cancel := h.context(c)
	defer cancel()
	report, err := h.svc.Price(ctx, cmd)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, PriceResponse{
		Price:  decimal.NewFromFloat(report.Pricing.Price).Round(8),
		Report: report,
	})
}

// Greeks 计算希腊字母，忽略 options.compute_greeks
func (h *PricingHandler) Greeks(c *gin.Context) {
	var req PriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cmd, err := h.toCommand(req)
	if err != nil {
		badRequest(c, err)
		return
	}
	cmd.Options.ComputeGreeks = true

	ctx, cancel := h.context(c)
	defer cancel()
	report, err := h.svc.Price(ctx, cmd)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, gin.H{
		"report_id": report.ID,
		"method":    report.Method,
		"price":     decimal.NewFromFloat(report.Pricing.Price).Round(8),
		"greeks":    report.Greeks,
		"converged": report.Pricing.Converged,
		"skipped":   report.GreeksSkipped,
	})
}

// ImpliedVolatility 由市场价格反解隐含波动率，未收敛时仍返回 200 与诊断信息
func (h *PricingHandler) ImpliedVolatility(c *gin.Context) {
	var req ImpliedVolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	opts, err := h.decodeOptions(req.Options)
	if err != nil {
		badRequest(c, err)
		return
	}

	ctx, cancel := h.context(c)
	defer cancel()
	res, err := h.svc.ImpliedVolatility(ctx, application.ImpliedVolCommand{
		Instrument:  req.Instrument,
		Market:      req.Market,
		MarketPrice: req.MarketPrice,
		Options:     &opts,
	})
	if err != nil {
		fail(c, err)
		return
	}
	success(c, res)
}

// Forecast GARCH 波动率预测
func (h *PricingHandler) Forecast(c *gin.Context) {
	var req ForecastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cfg := h.svc.DefaultForecastConfig()
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			badRequest(c, fmt.Errorf("config: %w", err))
			return
		}
	}

	ctx, cancel := h.context(c)
	defer cancel()
	res, err := h.svc.Forecast(ctx, application.ForecastCommand{
		Symbol:  req.Symbol,
		Returns: req.Returns,
		Closes:  req.Closes,
		From:    req.From,
		To:      req.To,
		Config:  &cfg,
	})
	if err != nil {
		fail(c, err)
		return
	}
	success(c, res)
}

// PricePortfolio 组合定价，单个合约失败不影响整体响应
func (h *PricingHandler) PricePortfolio(c *gin.Context) {
	var req PortfolioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	items := make([]application.PriceCommand, len(req.Items))
	for i, it := range req.Items {
		cmd, err := h.toCommand(it)
		if err != nil {
			badRequest(c, fmt.Errorf("items[%d]: %w", i, err))
			return
		}
		items[i] = cmd
	}

	ctx, cancel := h.context(c)
	defer cancel()
	success(c, h.svc.PricePortfolio(ctx, application.BatchPriceCommand{BatchID: req.BatchID, Items: items}))
}

// GetCalibration 查询最新校准结果，带 history 参数时返回历史
func (h *PricingHandler) GetCalibration(c *gin.Context) {
	symbol := c.Param("symbol")
	if raw, ok := c.GetQuery("history"); ok {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			badRequest(c, fmt.Errorf("history: %w", err))
			return
		}
		records, err := h.svc.CalibrationHistory(c.Request.Context(), symbol, limit)
		if err != nil {
			fail(c, err)
			return
		}
		success(c, records)
		return
	}

	record, err := h.svc.LatestCalibration(c.Request.Context(), symbol)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, record)
}

// GetReport 按 ID 查询定价报告
func (h *PricingHandler) GetReport(c *gin.Context) {
	report, err := h.svc.GetReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	success(c, report)
}

// GetMarket 查询标的行情快照
func (h *PricingHandler) GetMarket(c *gin.Context) {
	snap, err := h.svc.MarketSnapshot(c.Request.Context(), c.Param("symbol"))
	if err != nil {
		fail(c, err)
		return
	}
	success(c, snap)
}

// IndicatorQuery 技术指标窗口，全部缺省时使用服务配置
type IndicatorQuery struct {
	Short  int `form:"short" binding:"omitempty,min=1"`
	Long   int `form:"long" binding:"omitempty,min=1"`
	Signal int `form:"signal" binding:"omitempty,min=1"`
}

// GetIndicators 由历史收盘价计算均线、RSI 与 MACD
func (h *PricingHandler) GetIndicators(c *gin.Context) {
	var q IndicatorQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}
	var cfg *domain.IndicatorConfig
	if q != (IndicatorQuery{}) {
		d := domain.DefaultIndicatorConfig()
		if q.Short > 0 {
			d.ShortWindow = q.Short
		}
		if q.Long > 0 {
			d.LongWindow = q.Long
		}
		if q.Signal > 0 {
			d.SignalSpan = q.Signal
		}
		cfg = &d
	}

	ind, err := h.svc.Indicators(c.Request.Context(), c.Param("symbol"), cfg)
	if err != nil {
		fail(c, err)
		return
	}
	success(c, ind)
}
