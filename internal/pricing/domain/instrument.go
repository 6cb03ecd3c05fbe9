package domain

import (
	"fmt"
	"math"
)

// OptionType 期权类型
type OptionType string

const (
	OptionTypeCall OptionType = "CALL"
	OptionTypePut  OptionType = "PUT"
)

// ExerciseStyle 行权方式
type ExerciseStyle string

const (
	StyleEuropean ExerciseStyle = "EUROPEAN"
	StyleAmerican ExerciseStyle = "AMERICAN"
)

// PayoffKind 收益结构
type PayoffKind string

const (
	PayoffVanilla PayoffKind = "VANILLA"
	PayoffAsian   PayoffKind = "ASIAN"
	PayoffBarrier PayoffKind = "BARRIER"
)

// Averaging 亚式期权均值方式
type Averaging string

const (
	AveragingArithmetic Averaging = "ARITHMETIC"
	AveragingGeometric  Averaging = "GEOMETRIC"
)

// BarrierKind 障碍类型
type BarrierKind string

const (
	BarrierUpAndOut   BarrierKind = "UP_AND_OUT"
	BarrierDownAndOut BarrierKind = "DOWN_AND_OUT"
	BarrierUpAndIn    BarrierKind = "UP_AND_IN"
	BarrierDownAndIn  BarrierKind = "DOWN_AND_IN"
)

// Barrier 障碍条款
type Barrier struct {
	Kind  BarrierKind `json:"kind"`
	Level float64     `json:"level"`
}

// IsUp 障碍位于标的上方
func (b Barrier) IsUp() bool { return b.Kind == BarrierUpAndOut || b.Kind == BarrierUpAndIn }

// IsKnockIn 触碰后生效
func (b Barrier) IsKnockIn() bool { return b.Kind == BarrierUpAndIn || b.Kind == BarrierDownAndIn }

// Instrument 期权合约，构造后不可变
type Instrument struct {
	Symbol     string        `json:"symbol,omitempty"`
	Style      ExerciseStyle `json:"style"`
	Payoff     PayoffKind    `json:"payoff"`
	OptionType OptionType    `json:"option_type"`
	Strike     float64       `json:"strike"`
	Maturity   float64       `json:"maturity"` // 剩余期限（年）
	Averaging  Averaging     `json:"averaging,omitempty"`
	Barrier    *Barrier      `json:"barrier,omitempty"`
}

// NewVanilla 创建普通期权
func NewVanilla(style ExerciseStyle, optionType OptionType, strike, maturity float64) (Instrument, error) {
	inst := Instrument{
		Style:      style,
		Payoff:     PayoffVanilla,
		OptionType: optionType,
		Strike:     strike,
		Maturity:   maturity,
	}
	return inst, inst.Validate()
}

// NewAsian 创建欧式亚式期权
func NewAsian(optionType OptionType, averaging Averaging, strike, maturity float64) (Instrument, error) {
	inst := Instrument{
		Style:      StyleEuropean,
		Payoff:     PayoffAsian,
		OptionType: optionType,
		Strike:     strike,
		Maturity:   maturity,
		Averaging:  averaging,
	}
	return inst, inst.Validate()
}

// NewBarrier 创建欧式障碍期权
func NewBarrier(optionType OptionType, barrier Barrier, strike, maturity float64) (Instrument, error) {
	inst := Instrument{
		Style:      StyleEuropean,
		Payoff:     PayoffBarrier,
		OptionType: optionType,
		Strike:     strike,
		Maturity:   maturity,
		Barrier:    &barrier,
	}
	return inst, inst.Validate()
}

// Validate 校验合约字段
func (i Instrument) Validate() error {
	switch i.Style {
	case StyleEuropean, StyleAmerican:
	default:
		return fmt.Errorf("%w: style %q", ErrInvalidInstrument, i.Style)
	}
	switch i.OptionType {
	case OptionTypeCall, OptionTypePut:
	default:
		return fmt.Errorf("%w: option type %q", ErrInvalidInstrument, i.OptionType)
	}
	if !(i.Strike > 0) || math.IsInf(i.Strike, 0) {
		return fmt.Errorf("%w: strike must be positive, got %v", ErrInvalidInstrument, i.Strike)
	}
	if !(i.Maturity > 0) || math.IsInf(i.Maturity, 0) {
		return fmt.Errorf("%w: maturity must be positive, got %v", ErrInvalidInstrument, i.Maturity)
	}

	switch i.Payoff {
	case PayoffVanilla:
	case PayoffAsian:
		if i.Averaging != AveragingArithmetic && i.Averaging != AveragingGeometric {
			return fmt.Errorf("%w: averaging %q", ErrInvalidInstrument, i.Averaging)
		}
	case PayoffBarrier:
		if i.Barrier == nil {
			return fmt.Errorf("%w: barrier terms missing", ErrInvalidInstrument)
		}
		switch i.Barrier.Kind {
		case BarrierUpAndOut, BarrierDownAndOut, BarrierUpAndIn, BarrierDownAndIn:
		default:
			return fmt.Errorf("%w: barrier kind %q", ErrInvalidInstrument, i.Barrier.Kind)
		}
		if !(i.Barrier.Level > 0) {
			return fmt.Errorf("%w: barrier level must be positive", ErrInvalidInstrument)
		}
	default:
		return fmt.Errorf("%w: payoff %q", ErrInvalidInstrument, i.Payoff)
	}
	return nil
}

// PathDependent 收益依赖完整路径
func (i Instrument) PathDependent() bool {
	return i.Payoff == PayoffAsian || i.Payoff == PayoffBarrier
}

// Intrinsic 以标的价格 s 计算立即行权价值
func (i Instrument) Intrinsic(s float64) float64 {
	if i.OptionType == OptionTypeCall {
		return math.Max(s-i.Strike, 0)
	}
	return math.Max(i.Strike-s, 0)
}

// WithMaturity 返回调整期限后的副本
func (i Instrument) WithMaturity(t float64) Instrument {
	i.Maturity = t
	return i
}

// WithOptionType 返回调整期权方向后的副本
func (i Instrument) WithOptionType(t OptionType) Instrument {
	i.OptionType = t
	return i
}
