package messaging

import (
	"context"
	"encoding/json"
	"time"
	"unicode/utf8"

	"github.com/segmentio/kafka-go"
	"github.com/wyfcoding/pricingrisk/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	outboxPending = "pending"
	outboxSent    = "sent"
	outboxFailed  = "failed"
)

// OutboxMessage 待投递事件
type OutboxMessage struct {
	ID         string    `gorm:"type:varchar(36);primaryKey"`
	EventType  string    `gorm:"type:varchar(100);index"`
	Key        string    `gorm:"type:varchar(64)"`
	Payload    string    `gorm:"type:longtext"`
	Status     string    `gorm:"type:varchar(20);index;default:'pending'"`
	Attempts   int       `gorm:"not null;default:0"`
	LastError  string    `gorm:"type:varchar(512)"`
	OccurredOn time.Time `gorm:"index"`
	CreatedAt  time.Time `gorm:"index"`
	UpdatedAt  time.Time
}

// TableName 指定表名
func (OutboxMessage) TableName() string {
	return "pricing_outbox_messages"
}

func toOutboxMessage(env Envelope) (*OutboxMessage, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	return &OutboxMessage{
		ID:         env.EventID,
		EventType:  env.EventType,
		Key:        env.Key,
		Payload:    string(body),
		Status:     outboxPending,
		OccurredOn: env.OccurredOn,
	}, nil
}

type outboxSink struct {
	db *gorm.DB
}

func (s outboxSink) write(ctx context.Context, env Envelope) error {
	msg, err := toOutboxMessage(env)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(msg).Error
}

// NewOutboxEventPublisher 事件先写入 outbox 表，由 OutboxRelay 异步投递
func NewOutboxEventPublisher(db *gorm.DB) *EventPublisher {
	return &EventPublisher{sink: outboxSink{db: db}}
}

// Transactor 事务执行器，pkg/db.DB 实现该接口
type Transactor interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// MigrateOutbox 创建 outbox 表
func MigrateOutbox(db *gorm.DB) error {
	return db.AutoMigrate(&OutboxMessage{})
}

// OutboxRelay 将 outbox 中待投递的事件转发到 Kafka
type OutboxRelay struct {
	tx          Transactor
	sender      Sender
	topic       string
	batchSize   int
	maxAttempts int
	interval    time.Duration
}

// NewOutboxRelay 创建投递器
func NewOutboxRelay(tx Transactor, sender Sender, topic string, interval time.Duration) *OutboxRelay {
	if interval <= 0 {
		interval = time.Second
	}
	return &OutboxRelay{tx: tx, sender: sender, topic: topic, batchSize: 100, maxAttempts: 5, interval: interval}
}

// Run 周期性投递，直到 ctx 结束
func (r *OutboxRelay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.ProcessOutboxMessages(ctx); err != nil {
				logger.Error(ctx, "outbox relay failed", "error", err)
			}
		}
	}
}

// ProcessOutboxMessages 投递一批待处理消息，返回成功条数
// 行锁使用 SKIP LOCKED，多个实例可以并行投递
func (r *OutboxRelay) ProcessOutboxMessages(ctx context.Context) (int, error) {
	sent := 0
	err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var messages []OutboxMessage
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", outboxPending).
			Order("created_at asc").
			Limit(r.batchSize).
			Find(&messages).Error; err != nil {
			return err
		}

		for i := range messages {
			msg := &messages[i]
			updates := r.deliver(ctx, msg)
			if updates["status"] == outboxSent {
				sent++
			}
			if err := tx.Model(msg).Updates(updates).Error; err != nil {
				return err
			}
		}
		return nil
	})
	return sent, err
}

// deliver 发送单条消息，返回需要回写的字段
func (r *OutboxRelay) deliver(ctx context.Context, msg *OutboxMessage) map[string]any {
	var env Envelope
	err := json.Unmarshal([]byte(msg.Payload), &env)
	if err == nil {
		err = r.sender.SendMessage(ctx, r.topic, msg.Key, env,
			kafka.Header{Key: "event_type", Value: []byte(env.EventType)},
			kafka.Header{Key: "event_id", Value: []byte(env.EventID)},
		)
	}

	updates := map[string]any{"attempts": msg.Attempts + 1}
	if err == nil {
		updates["status"] = outboxSent
		return updates
	}
	updates["last_error"] = truncate(err.Error(), 512)
	if msg.Attempts+1 >= r.maxAttempts {
		updates["status"] = outboxFailed
		logger.Error(ctx, "outbox message dropped", "event_id", msg.ID, "event_type", msg.EventType, "error", err)
	}
	return updates
}

// truncate 截断到至多 n 字节，不拆开多字节字符
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
