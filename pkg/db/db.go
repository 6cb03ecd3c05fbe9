// Package db 提供 GORM 初始化、事务助手，以及按表与操作记录 SQL 的日志适配
package db

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	pkgLogger "github.com/wyfcoding/pricingrisk/pkg/logger"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config 数据库配置
type Config struct {
	Driver             string
	DSN                string
	MaxOpenConns       int
	MaxIdleConns       int
	ConnMaxLifetime    int
	LogEnabled         bool
	SlowQueryThreshold int
}

// DB 数据库实例包装
type DB struct {
	*gorm.DB
	config Config
}

func dialectorFor(cfg Config) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "mysql":
		return mysql.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}
}

// Init 打开连接、设置连接池并 ping 一次
func Init(cfg Config) (*DB, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	level := logger.Warn
	if cfg.LogEnabled {
		level = logger.Info
	}
	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger: NewGormLogger(level, time.Duration(cfg.SlowQueryThreshold)*time.Millisecond),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pkgLogger.Info(ctx, "Database connected successfully",
		"driver", cfg.Driver, "max_open_conns", cfg.MaxOpenConns, "slow_query_ms", cfg.SlowQueryThreshold)
	return &DB{DB: gdb, config: cfg}, nil
}

// Close 关闭数据库连接
func (d *DB) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// WithTx 在事务中执行 fn，出错回滚
func (d *DB) WithTx(ctx context.Context, fn func(*gorm.DB) error) error {
	return d.DB.WithContext(ctx).Transaction(fn)
}

// GormLogger 把 GORM 的 SQL 轨迹写入结构化日志
// 每条记录带 op、table、rows、elapsed_ms，context 中的 symbol、report_id 等字段一并输出
type GormLogger struct {
	level logger.LogLevel
	slow  time.Duration
}

// NewGormLogger 创建日志适配器，slow 为 0 时不做慢查询告警
func NewGormLogger(level logger.LogLevel, slow time.Duration) *GormLogger {
	return &GormLogger{level: level, slow: slow}
}

// LogMode 返回指定级别的副本
func (l *GormLogger) LogMode(level logger.LogLevel) logger.Interface {
	cp := *l
	cp.level = level
	return &cp
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.level >= logger.Info {
		pkgLogger.Info(ctx, fmt.Sprintf(msg, data...), "component", "gorm")
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.level >= logger.Warn {
		pkgLogger.Warn(ctx, fmt.Sprintf(msg, data...), "component", "gorm")
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.level >= logger.Error {
		pkgLogger.Error(ctx, fmt.Sprintf(msg, data...), "component", "gorm")
	}
}

// Trace 错误总是记录，慢查询在 Warn 级别记录，其余仅 Info 级别记录
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)
	slow := l.slow > 0 && elapsed > l.slow

	switch {
	case failed && l.level >= logger.Error:
		pkgLogger.Error(ctx, "sql failed", append(l.fields(elapsed, fc), "error", err)...)
	case slow && l.level >= logger.Warn:
		pkgLogger.Warn(ctx, "slow sql", append(l.fields(elapsed, fc), "threshold_ms", l.slow.Milliseconds())...)
	case l.level >= logger.Info:
		pkgLogger.Debug(ctx, "sql executed", l.fields(elapsed, fc)...)
	}
}

func (l *GormLogger) fields(elapsed time.Duration, fc func() (string, int64)) []any {
	sql, rows := fc()
	op, table := sqlTarget(sql)
	return []any{
		"op", op,
		"table", table,
		"rows", rows,
		"elapsed_ms", float64(elapsed.Microseconds()) / 1000,
		"sql", sql,
	}
}

var tablePattern = regexp.MustCompile("(?i)\\b(?:from|into|update|table)\\s+`?([A-Za-z0-9_]+)`?")

// sqlTarget 取语句的首个关键字与目标表，无法识别时表名为空
func sqlTarget(sql string) (op, table string) {
	trimmed := strings.TrimSpace(sql)
	if i := strings.IndexAny(trimmed, " \n\t"); i > 0 {
		op = strings.ToUpper(trimmed[:i])
	} else {
		op = strings.ToUpper(trimmed)
	}
	if m := tablePattern.FindStringSubmatch(trimmed); m != nil {
		table = m[1]
	}
	return op, table
}
