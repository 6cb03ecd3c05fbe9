package application

import (
	"context"
	"fmt"
	"time"

	"github.com/wyfcoding/pricingrisk/internal/pricing/domain"
	"github.com/wyfcoding/pricingrisk/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// Price 单合约定价
// 波动率缺失时先由市场价格反解；未收敛的校准默认拒绝，返回 *CalibrationError
func (s *PricingService) Price(ctx context.Context, cmd PriceCommand) (*domain.PricingReport, error) {
	start := time.Now()
	inst := cmd.Instrument
	opts := s.options(cmd.Options)

	method := opts.Method
	if method == domain.MethodAuto {
		method = domain.Route(inst)
	}

	report, err := s.price(ctx, cmd, opts)
	status := "ok"
	if err != nil {
		status = "error"
		s.reportFailure(ctx, inst, method, err)
	}
	paths := 0
	if report != nil {
		paths = report.Pricing.PathsUsed
	}
	s.recorder.ObservePricing(string(method), status, time.Since(start).Seconds(), paths)
	if err != nil {
		return nil, err
	}

	s.deliver(ctx, report)
	logger.Debug(ctx, "option priced",
		"report_id", report.ID,
		"symbol", inst.Symbol,
		"method", report.Method,
		"price", report.Pricing.Price,
		"duration", time.Since(start),
	)
	return report, nil
}

func (s *PricingService) price(ctx context.Context, cmd PriceCommand, opts domain.Options) (*domain.PricingReport, error) {
	inst, mkt := cmd.Instrument, cmd.Market
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := inst.Validate(); err != nil {
		return nil, err
	}
	if err := mkt.Validate(); err != nil {
		return nil, err
	}

	var calibration *domain.CalibrationResult
	if !mkt.HasVolatility() {
		if cmd.MarketPrice == nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrMissingVolatility, inst.Symbol)
		}
		res, err := s.calibrate(ctx, inst, mkt, *cmd.MarketPrice, opts)
		if err != nil {
			return nil, fmt.Errorf("calibrate volatility: %w", err)
		}
		if !res.Converged && !cmd.AllowUnconverged {
			return nil, &CalibrationError{Result: res}
		}
		mkt = mkt.WithVolatility(res.ImpliedVolatility)
		calibration = &res
	}

	pricer := domain.PricerFor(opts.Method, inst)
	result, err := pricer.Price(ctx, inst, mkt, opts)
	if err != nil {
		return nil, err
	}

	var greeks *domain.GreekSet
	var skipped string
	if opts.ComputeGreeks {
		greeks, skipped, err = s.greeks(ctx, pricer, inst, mkt, opts, result)
		if err != nil {
			return nil, err
		}
	}

	return &domain.PricingReport{
		ID:            s.newID(),
		Instrument:    inst,
		Market:        mkt,
		Method:        pricer.Method(),
		Pricing:       result,
		Greeks:        greeks,
		GreeksSkipped: skipped,
		Calibration:   calibration,
		CreatedAt:     s.now(),
	}, nil
}

// greeks 计算希腊字母；截止时间已到或定价被截断时不再重定价，保留已得到的价格
func (s *PricingService) greeks(ctx context.Context, pricer domain.Pricer, inst domain.Instrument, mkt domain.MarketSnapshot, opts domain.Options, base domain.PricingResult) (*domain.GreekSet, string, error) {
	if !base.Converged || ctx.Err() != nil {
		logger.Warn(ctx, "greeks skipped, pricing run cut short",
			"symbol", inst.Symbol, "paths_used", base.PathsUsed, "paths_requested", base.PathsRequested)
		return nil, "pricing run cut short before greeks", nil
	}
	g, err := domain.ComputeGreeks(ctx, pricer, inst, mkt, opts)
	if err != nil {
		if ctx.Err() != nil {
			logger.Warn(ctx, "greeks abandoned at deadline", "symbol", inst.Symbol, "error", err)
			return nil, "deadline reached while computing greeks", nil
		}
		return nil, "", err
	}
	return &g, "", nil
}

func (s *PricingService) calibrate(ctx context.Context, inst domain.Instrument, mkt domain.MarketSnapshot, marketPrice float64, opts domain.Options) (domain.CalibrationResult, error) {
	defer logger.LogDuration(ctx, "calibration finished", "symbol", inst.Symbol)()
	res, err := domain.ImpliedVolatility(ctx, inst, mkt, marketPrice, opts, s.cfg.Calibration)
	if err != nil {
		return res, err
	}
	s.recordCalibration(ctx, inst, mkt, marketPrice, res)
	return res, nil
}

// PricePortfolio 并发为组合内每个合约定价
// 单个合约失败只记录在对应条目上，整体永不失败
func (s *PricingService) PricePortfolio(ctx context.Context, cmd BatchPriceCommand) *BatchReport {
	if cmd.BatchID == "" {
		cmd.BatchID = s.newID()
	}
	ctx = logger.ContextWithFields(ctx, "batch_id", cmd.BatchID)
	start := time.Now()
	items := make([]BatchItem, len(cmd.Items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.PortfolioWorkers)
	for i, item := range cmd.Items {
		i, item := i, item
		g.Go(func() error {
			report, err := s.Price(gctx, item)
			items[i] = BatchItem{Index: i, Symbol: item.Instrument.Symbol, Report: report, Err: err}
			if err != nil {
				items[i].Error = err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()

	out := &BatchReport{BatchID: cmd.BatchID, Items: items}
	for _, it := range items {
		if it.Err != nil {
			out.FailureCount++
		} else {
			out.SuccessCount++
		}
	}
	if n := len(items); n > 0 {
		out.AverageTime = time.Since(start).Seconds() / float64(n)
	}
	s.recorder.ObservePortfolio(out.SuccessCount, out.FailureCount)

	if s.publisher != nil {
		if err := s.publisher.PublishBatchPricingCompleted(ctx, domain.BatchPricingCompletedEvent{
			BatchID:        out.BatchID,
			Symbols:        extractSymbols(cmd.Items),
			TotalContracts: len(items),
			SuccessCount:   out.SuccessCount,
			FailureCount:   out.FailureCount,
			AverageTime:    out.AverageTime,
			OccurredOn:     s.now(),
		}); err != nil {
			logger.Error(ctx, "failed to publish batch completed event", "error", err)
		}
	}
	logger.Info(ctx, "portfolio priced",
		"success", out.SuccessCount,
		"failure", out.FailureCount,
	)
	return out
}

// extractSymbols 去重后的合约代码
func extractSymbols(items []PriceCommand) []string {
	symbols := make([]string, 0, len(items))
	seen := make(map[string]bool)
	for _, it := range items {
		sym := it.Instrument.Symbol
		if sym == "" || seen[sym] {
			continue
		}
		seen[sym] = true
		symbols = append(symbols, sym)
	}
	return symbols
}
