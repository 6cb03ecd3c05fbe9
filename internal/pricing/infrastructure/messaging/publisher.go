package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wyfcoding/pricingrisk/internal/pricing/domain"
)

// Envelope 发往消息队列的统一事件格式
type Envelope struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	Key        string          `json:"key"`
	OccurredOn time.Time       `json:"occurred_on"`
	Payload    json.RawMessage `json:"payload"`
}

func newEnvelope(eventType, key string, occurredOn time.Time, event any) (Envelope, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s event: %w", eventType, err)
	}
	return Envelope{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		Key:        key,
		OccurredOn: occurredOn,
		Payload:    payload,
	}, nil
}

// sink 事件最终去向
type sink interface {
	write(ctx context.Context, env Envelope) error
}

// EventPublisher 实现 domain.EventPublisher，事件经信封编码后写入 sink
type EventPublisher struct {
	sink sink
}

var _ domain.EventPublisher = (*EventPublisher)(nil)

func (p *EventPublisher) publish(ctx context.Context, eventType, key string, occurredOn time.Time, event any) error {
	env, err := newEnvelope(eventType, key, occurredOn, event)
	if err != nil {
		return err
	}
	return p.sink.write(ctx, env)
}

// PublishOptionPriced 发布期权定价完成事件
func (p *EventPublisher) PublishOptionPriced(ctx context.Context, event domain.OptionPricedEvent) error {
	return p.publish(ctx, domain.OptionPricedEventType, event.Symbol, event.OccurredOn, event)
}

// PublishGreeksCalculated 发布希腊字母计算完成事件
func (p *EventPublisher) PublishGreeksCalculated(ctx context.Context, event domain.GreeksCalculatedEvent) error {
	return p.publish(ctx, domain.GreeksCalculatedEventType, event.Symbol, event.OccurredOn, event)
}

// PublishVolatilityCalibrated 发布隐含波动率校准事件
func (p *EventPublisher) PublishVolatilityCalibrated(ctx context.Context, event domain.VolatilityCalibratedEvent) error {
	return p.publish(ctx, domain.VolatilityCalibratedEventType, event.Symbol, event.OccurredOn, event)
}

// PublishVolatilityForecasted 发布波动率预测事件
func (p *EventPublisher) PublishVolatilityForecasted(ctx context.Context, event domain.VolatilityForecastedEvent) error {
	return p.publish(ctx, domain.VolatilityForecastedEventType, event.Symbol, event.OccurredOn, event)
}

// PublishPricingError 发布定价错误事件
func (p *EventPublisher) PublishPricingError(ctx context.Context, event domain.PricingErrorEvent) error {
	return p.publish(ctx, domain.PricingErrorEventType, event.Symbol, event.OccurredOn, event)
}

// PublishBatchPricingCompleted 发布批量定价完成事件
func (p *EventPublisher) PublishBatchPricingCompleted(ctx context.Context, event domain.BatchPricingCompletedEvent) error {
	return p.publish(ctx, domain.BatchPricingCompletedEventType, event.BatchID, event.OccurredOn, event)
}
