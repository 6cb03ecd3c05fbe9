package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// ComputeGreeks 计算希腊字母
// 定价器提供解析解且模式为 AUTO 时直接使用解析解，否则中心差分重定价
func ComputeGreeks(ctx context.Context, pricer Pricer, inst Instrument, mkt MarketSnapshot, opts Options) (GreekSet, error) {
	if err := inst.Validate(); err != nil {
		return GreekSet{}, err
	}
	if err := mkt.Validate(); err != nil {
		return GreekSet{}, err
	}
	if err := opts.Bumps.Validate(); err != nil {
		return GreekSet{}, err
	}
	vol, err := mkt.requireVol()
	if err != nil {
		return GreekSet{}, err
	}

	if cf, ok := pricer.(ClosedFormGreeker); ok && opts.GreekMode != GreekModeFiniteDifference {
		return cf.ClosedFormGreeks(inst, mkt)
	}

	// 模拟定价共用随机数，差分才有意义
	if pricer.Method() == MethodMonteCarlo && opts.Seed == nil {
		opts = opts.WithSeed(uint64(time.Now().UnixNano()))
	}
	fd := finiteDifference{ctx: ctx, pricer: pricer, opts: opts}
	return fd.compute(inst, mkt, vol)
}

type finiteDifference struct {
	ctx    context.Context
	pricer Pricer
	opts   Options
}

// bump 一个扰动后的重定价任务
type bump struct {
	greek string
	inst  Instrument
	mkt   MarketSnapshot
	price float64
}

func (fd finiteDifference) compute(inst Instrument, mkt MarketSnapshot, vol float64) (GreekSet, error) {
	b := fd.opts.Bumps
	base, err := fd.pricer.Price(fd.ctx, inst, mkt, fd.opts)
	if err != nil {
		return GreekSet{}, err
	}
	if !base.Converged {
		return GreekSet{}, &GreekError{Greek: "all", Reason: truncatedReason(base), Err: fd.cause()}
	}

	hS := b.Spot * mkt.Spot
	if mkt.Spot-hS <= 0 {
		return GreekSet{}, &GreekError{Greek: "delta", Reason: fmt.Sprintf("spot bump %v leaves non-positive spot", hS)}
	}
	hV := b.Vol * vol
	if hV < MinVolBump {
		hV = MinVolBump
	}
	if vol-hV < 0 {
		return GreekSet{}, &GreekError{Greek: "vega", Reason: fmt.Sprintf("volatility %v cannot be bumped down by %v", vol, hV)}
	}
	hR := b.Rate
	hT := b.Time
	oneSidedTheta := inst.Maturity-hT <= 0
	down := inst.WithMaturity(inst.Maturity - hT)
	if oneSidedTheta {
		down = inst
	}

	jobs := []bump{
		{greek: "delta", inst: inst, mkt: mkt.WithSpot(mkt.Spot + hS)},
		{greek: "delta", inst: inst, mkt: mkt.WithSpot(mkt.Spot - hS)},
		{greek: "vega", inst: inst, mkt: mkt.WithVolatility(vol + hV)},
		{greek: "vega", inst: inst, mkt: mkt.WithVolatility(vol - hV)},
		{greek: "rho", inst: inst, mkt: mkt.WithRate(mkt.RiskFreeRate + hR)},
		{greek: "rho", inst: inst, mkt: mkt.WithRate(mkt.RiskFreeRate - hR)},
		{greek: "theta", inst: down, mkt: mkt},
		{greek: "theta", inst: inst.WithMaturity(inst.Maturity + hT), mkt: mkt},
	}

	g, ctx := errgroup.WithContext(fd.ctx)
	for i := range jobs {
		i := i
		g.Go(func() error {
			res, err := fd.pricer.Price(ctx, jobs[i].inst, jobs[i].mkt, fd.opts)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				return &GreekError{Greek: jobs[i].greek, Reason: "reprice at bumped input failed", Err: err}
			}
			// 差分两侧须使用同一组随机数和相同样本数
			if !res.Converged || res.PathsUsed != base.PathsUsed {
				return &GreekError{Greek: jobs[i].greek, Reason: truncatedReason(res), Err: fd.cause()}
			}
			jobs[i].price = res.Price
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return GreekSet{}, err
	}

	v0 := base.Price
	theta := (jobs[6].price - jobs[7].price) / (2 * hT)
	if oneSidedTheta {
		theta = (v0 - jobs[7].price) / hT
	}
	return GreekSet{
		Delta:  (jobs[0].price - jobs[1].price) / (2 * hS),
		Gamma:  (jobs[0].price - 2*v0 + jobs[1].price) / (hS * hS),
		Vega:   (jobs[2].price - jobs[3].price) / (2 * hV),
		Rho:    (jobs[4].price - jobs[5].price) / (2 * hR),
		Theta:  theta,
		Source: GreekSourceFiniteDifference,
	}, nil
}

func (fd finiteDifference) cause() error {
	if err := fd.ctx.Err(); err != nil {
		return err
	}
	return ErrSimulationTruncated
}

func truncatedReason(res PricingResult) string {
	return fmt.Sprintf("reprice truncated at %d of %d paths", res.PathsUsed, res.PathsRequested)
}

// Vega 仅计算 Vega，供隐含波动率求解作为导数
func Vega(ctx context.Context, pricer Pricer, inst Instrument, mkt MarketSnapshot, opts Options) (float64, error) {
	vol, err := mkt.requireVol()
	if err != nil {
		return 0, err
	}
	if cf, ok := pricer.(ClosedFormGreeker); ok && opts.GreekMode != GreekModeFiniteDifference {
		g, err := cf.ClosedFormGreeks(inst, mkt)
		return g.Vega, err
	}

	h := opts.Bumps.Vol * vol
	if h < MinVolBump {
		h = MinVolBump
	}
	lo := vol - h
	if lo < 0 {
		lo = 0
	}
	up, err := pricer.Price(ctx, inst, mkt.WithVolatility(vol+h), opts)
	if err != nil {
		return 0, err
	}
	dn, err := pricer.Price(ctx, inst, mkt.WithVolatility(lo), opts)
	if err != nil {
		return 0, err
	}
	for _, res := range []PricingResult{up, dn} {
		if !res.Converged {
			return 0, &GreekError{Greek: "vega", Reason: truncatedReason(res), Err: ctx.Err()}
		}
	}
	return (up.Price - dn.Price) / (vol + h - lo), nil
}
