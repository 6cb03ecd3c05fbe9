package domain

import "context"

// Method 定价方法
type Method string

const (
	MethodAuto       Method = "AUTO"
	MethodAnalytical Method = "ANALYTICAL"
	MethodLattice    Method = "LATTICE"
	MethodMonteCarlo Method = "MONTE_CARLO"
)

// Pricer 定价能力
type Pricer interface {
	Method() Method
	Price(ctx context.Context, inst Instrument, mkt MarketSnapshot, opts Options) (PricingResult, error)
}

// ClosedFormGreeker 可直接给出解析希腊字母的定价器
type ClosedFormGreeker interface {
	ClosedFormGreeks(inst Instrument, mkt MarketSnapshot) (GreekSet, error)
}

// Route 按合约属性选择最便宜的可用定价方法：解析 > 二叉树 > 蒙特卡洛
func Route(inst Instrument) Method {
	switch {
	case inst.PathDependent():
		return MethodMonteCarlo
	case inst.Style == StyleAmerican:
		return MethodLattice
	default:
		return MethodAnalytical
	}
}

// PricerFor 返回方法对应的定价器，AUTO 按合约路由
func PricerFor(method Method, inst Instrument) Pricer {
	if method == MethodAuto || method == "" {
		method = Route(inst)
	}
	switch method {
	case MethodLattice:
		return LatticePricer{}
	case MethodMonteCarlo:
		return MonteCarloPricer{}
	default:
		return AnalyticalPricer{}
	}
}
