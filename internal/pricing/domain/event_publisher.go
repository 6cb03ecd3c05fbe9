package domain

import "context"

// EventPublisher 事件发布者接口
type EventPublisher interface {
	// PublishOptionPriced 发布期权定价完成事件
	PublishOptionPriced(ctx context.Context, event OptionPricedEvent) error

	// PublishGreeksCalculated 发布希腊字母计算完成事件
	PublishGreeksCalculated(ctx context.Context, event GreeksCalculatedEvent) error

	// PublishVolatilityCalibrated 发布隐含波动率校准事件
	PublishVolatilityCalibrated(ctx context.Context, event VolatilityCalibratedEvent) error

	// PublishVolatilityForecasted 发布波动率预测事件
	PublishVolatilityForecasted(ctx context.Context, event VolatilityForecastedEvent) error

	// PublishPricingError 发布定价错误事件
	PublishPricingError(ctx context.Context, event PricingErrorEvent) error

	// PublishBatchPricingCompleted 发布批量定价完成事件
	PublishBatchPricingCompleted(ctx context.Context, event BatchPricingCompletedEvent) error
}
