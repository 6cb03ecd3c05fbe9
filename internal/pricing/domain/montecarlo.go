package domain

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"time"

	"golang.org/x/exp/rand"
	"golang.org/x/sync/errgroup"
)

// 批内检查取消的间隔（样本数）
const cancelCheckInterval = 256

// MonteCarloPricer 几何布朗运动路径模拟
// 每个样本是一条路径与其对偶路径（正态变量取负）的平均，paths 即样本数
type MonteCarloPricer struct{}

func (MonteCarloPricer) Method() Method { return MethodMonteCarlo }

// Price 模拟定价
func (MonteCarloPricer) Price(ctx context.Context, inst Instrument, mkt MarketSnapshot, opts Options) (PricingResult, error) {
	if err := inst.Validate(); err != nil {
		return PricingResult{}, err
	}
	if inst.Style != StyleEuropean {
		return PricingResult{}, fmt.Errorf("%w: monte carlo pricer has no early exercise, got %s", ErrUnsupportedInstrument, inst.Style)
	}
	if err := mkt.Validate(); err != nil {
		return PricingResult{}, err
	}
	if opts.Paths < 1 {
		return PricingResult{}, fmt.Errorf("%w: %d", ErrInvalidPathCount, opts.Paths)
	}
	if inst.PathDependent() && opts.MonitoringSteps < 1 {
		return PricingResult{}, fmt.Errorf("%w: monitoring steps %d", ErrInvalidStepCount, opts.MonitoringSteps)
	}
	vol, err := mkt.requireVol()
	if err != nil {
		return PricingResult{}, err
	}

	sim := newSimulation(inst, mkt, vol, opts)
	total, err := sim.run(ctx)
	if err != nil {
		return PricingResult{}, err
	}

	price, se := total.estimate(sim.useControl, sim.controlMean)
	used := int(total.n)
	return PricingResult{
		Price:          price,
		StandardError:  se,
		Method:         MethodMonteCarlo,
		PathsUsed:      used,
		PathsRequested: opts.Paths,
		Steps:          sim.steps,
		Converged:      used == opts.Paths,
	}, nil
}

// simulation 一次定价调用的只读模拟参数，各 worker 共享
type simulation struct {
	inst      Instrument
	spot      float64
	steps     int
	drift     float64 // 每步漂移 (r-q-σ²/2)dt
	diffusion float64 // 每步扩散 σ√dt
	discount  float64

	useControl  bool
	controlMean float64
	// 关闭时每个样本只取一条路径，仅用于对比方差
	antithetic  bool

	paths     int
	batchSize int
	workers   int
	seed      uint64
}

func newSimulation(inst Instrument, mkt MarketSnapshot, vol float64, opts Options) *simulation {
	steps := 1
	if inst.PathDependent() {
		steps = opts.MonitoringSteps
	}
	dt := inst.Maturity / float64(steps)

	s := &simulation{
		inst:       inst,
		spot:       mkt.Spot,
		steps:      steps,
		drift:      (mkt.RiskFreeRate - mkt.DividendYield - 0.5*vol*vol) * dt,
		diffusion:  vol * math.Sqrt(dt),
		discount:   math.Exp(-mkt.RiskFreeRate * inst.Maturity),
		paths:      opts.Paths,
		batchSize:  opts.BatchSize,
		workers:    opts.Workers,
		antithetic: true,
	}
	if s.batchSize < 1 {
		s.batchSize = 10_000
	}
	if s.workers < 1 {
		s.workers = runtime.GOMAXPROCS(0)
	}
	if opts.Seed != nil {
		s.seed = *opts.Seed
	} else {
		s.seed = uint64(time.Now().UnixNano())
	}

	// 控制变量：收益退化为普通欧式（或几何亚式）时有闭式期望
	if opts.ControlVariate && inst.PathDependent() {
		in := newBlackScholesInput(inst, mkt, vol)
		s.useControl = true
		if inst.Payoff == PayoffAsian && inst.Averaging == AveragingArithmetic {
			s.controlMean = GeometricAsianPrice(inst.OptionType, in, steps)
		} else {
			s.controlMean = BlackScholes(inst.OptionType, in)
		}
	}
	return s
}

// run 分批并行模拟，按批次序号归并
func (s *simulation) run(ctx context.Context) (moments, error) {
	batches := (s.paths + s.batchSize - 1) / s.batchSize
	partial := make([]moments, batches)
	done := make([]bool, batches)

	g := new(errgroup.Group)
	g.SetLimit(s.workers)
	for b := 0; b < batches; b++ {
		b := b
		if ctx.Err() != nil {
			break
		}
		size := s.batchSize
		if rem := s.paths - b*s.batchSize; rem < size {
			size = rem
		}
		g.Go(func() error {
			m, ok := s.runBatch(ctx, b, size)
			partial[b], done[b] = m, ok
			return nil
		})
	}
	_ = g.Wait()

	var total moments
	for b := range partial {
		if done[b] {
			total.merge(partial[b])
		}
	}
	if total.n == 0 {
		if err := ctx.Err(); err != nil {
			return moments{}, fmt.Errorf("monte carlo cancelled before any batch completed: %w", err)
		}
	}
	return total, nil
}

// runBatch 模拟一个批次；被取消时丢弃整个批次
func (s *simulation) runBatch(ctx context.Context, batch, size int) (moments, bool) {
	rng := rand.New(rand.NewSource(batchSeed(s.seed, batch)))
	var m moments
	for i := 0; i < size; i++ {
		if i%cancelCheckInterval == 0 && ctx.Err() != nil {
			return moments{}, false
		}
		y, x := s.sample(rng)
		m.add(y, x)
	}
	return m, true
}

// sample 生成一对对偶路径，返回折现后的收益与控制变量
func (s *simulation) sample(rng *rand.Rand) (float64, float64) {
	if !s.antithetic {
		return s.samplePlain(rng)
	}
	if !s.inst.PathDependent() {
		z := rng.NormFloat64()
		up := s.spot * math.Exp(s.drift+s.diffusion*z)
		dn := s.spot * math.Exp(s.drift-s.diffusion*z)
		y := 0.5 * (s.inst.Intrinsic(up) + s.inst.Intrinsic(dn))
		return s.discount * y, 0
	}

	a := newPathState(s.spot)
	b := newPathState(s.spot)
	for k := 0; k < s.steps; k++ {
		z := s.diffusion * rng.NormFloat64()
		a.step(math.Exp(s.drift + z))
		b.step(math.Exp(s.drift - z))
	}
	ya, xa := s.payoff(&a)
	yb, xb := s.payoff(&b)
	return s.discount * 0.5 * (ya + yb), s.discount * 0.5 * (xa + xb)
}

func (s *simulation) samplePlain(rng *rand.Rand) (float64, float64) {
	p := newPathState(s.spot)
	for k := 0; k < s.steps; k++ {
		p.step(math.Exp(s.drift + s.diffusion*rng.NormFloat64()))
	}
	y, x := s.payoff(&p)
	return s.discount * y, s.discount * x
}

// payoff 返回路径收益与控制变量收益（均未折现）
func (s *simulation) payoff(p *pathState) (float64, float64) {
	inst := s.inst
	n := float64(s.steps)
	vanilla := inst.Intrinsic(p.spot)

	switch inst.Payoff {
	case PayoffAsian:
		geo := inst.Intrinsic(math.Exp(p.logSum / n))
		if inst.Averaging == AveragingGeometric {
			return geo, vanilla
		}
		return inst.Intrinsic(p.sum / n), geo
	case PayoffBarrier:
		bar := inst.Barrier
		var hit bool
		if bar.IsUp() {
			hit = p.max >= bar.Level
		} else {
			hit = p.min <= bar.Level
		}
		if hit == bar.IsKnockIn() {
			return vanilla, vanilla
		}
		return 0, vanilla
	default:
		return vanilla, vanilla
	}
}

// pathState 单条路径的累积量；观察点为 t1..tn，极值包含期初价格
type pathState struct {
	spot, sum, logSum, min, max float64
}

func newPathState(spot float64) pathState {
	return pathState{spot: spot, min: spot, max: spot}
}

func (p *pathState) step(growth float64) {
	p.spot *= growth
	p.sum += p.spot
	p.logSum += math.Log(p.spot)
	if p.spot > p.max {
		p.max = p.spot
	}
	if p.spot < p.min {
		p.min = p.spot
	}
}

// batchSeed SplitMix64 派生批次种子
func batchSeed(seed uint64, batch int) uint64 {
	z := seed + uint64(batch+1)*0x9E3779B97F4A7C15
	z = (z ^ (z >> 30)) * 0xBF58476D1CE4E5B9
	z = (z ^ (z >> 27)) * 0x94D049BB133111EB
	return z ^ (z >> 31)
}

// moments 样本 y 与控制变量 x 的一、二阶矩，支持并行归并（Chan 等）
type moments struct {
	n            float64
	meanY, meanX float64
	m2Y, m2X     float64
	cXY          float64
}

func (m *moments) add(y, x float64) {
	m.n++
	dx := x - m.meanX
	dy := y - m.meanY
	m.meanX += dx / m.n
	m.meanY += dy / m.n
	m.m2X += dx * (x - m.meanX)
	m.m2Y += dy * (y - m.meanY)
	m.cXY += dx * (y - m.meanY)
}

func (m *moments) merge(o moments) {
	if o.n == 0 {
		return
	}
	if m.n == 0 {
		*m = o
		return
	}
	n := m.n + o.n
	dx := o.meanX - m.meanX
	dy := o.meanY - m.meanY
	w := m.n * o.n / n
	m.meanX += dx * o.n / n
	m.meanY += dy * o.n / n
	m.m2X += o.m2X + dx*dx*w
	m.m2Y += o.m2Y + dy*dy*w
	m.cXY += o.cXY + dx*dy*w
	m.n = n
}

// estimate 返回均值与标准误；单样本时标准误记为 0
func (m moments) estimate(control bool, controlMean float64) (float64, float64) {
	mean := m.meanY
	ss := m.m2Y
	if control && m.m2X > 0 {
		beta := m.cXY / m.m2X
		mean -= beta * (m.meanX - controlMean)
		ss = m.m2Y - m.cXY*m.cXY/m.m2X
		if ss < 0 {
			ss = 0
		}
	}
	if m.n < 2 {
		return mean, 0
	}
	variance := ss / (m.n - 1)
	return mean, math.Sqrt(variance / m.n)
}
