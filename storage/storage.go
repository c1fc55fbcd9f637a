package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"Plans/pkg/logger"
	"Plans/storage/database"
	"Plans/storage/mq"
	"Plans/storage/redis"
)

// Component 存储层组件，按声明顺序初始化、倒序关闭
type Component string

const (
	Database Component = "database"
	Redis    Component = "redis"
	MQ       Component = "rabbitmq"
)

var all = []Component{Database, Redis, MQ}

var (
	mu     sync.Mutex
	opened []Component
)

// Init 初始化指定组件，未指定时初始化全部。
// scheduler 只需要 Database 和 MQ。
func Init(components ...Component) error {
	if len(components) == 0 {
		components = all
	}

	mu.Lock()
	defer mu.Unlock()

	for _, c := range ordered(components) {
		if contains(opened, c) {
			continue
		}
		if err := initComponent(c); err != nil {
			return fmt.Errorf("failed to initialize %s: %w", c, err)
		}
		opened = append(opened, c)
	}
	return nil
}

// Close 倒序关闭已初始化的组件：先停止消息，再关缓存，最后关数据库
func Close(ctx context.Context) error {
	mu.Lock()
	defer mu.Unlock()

	logger.Logger.Info("Closing storage connections...")

	var errs []error
	for i := len(opened) - 1; i >= 0; i-- {
		c := opened[i]
		if err := closeComponent(ctx, c); err != nil {
			logger.Logger.Error("Failed to close storage component",
				zap.String("component", string(c)),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", c, err))
			continue
		}
		logger.Logger.Info("Storage component closed", zap.String("component", string(c)))
	}
	opened = nil

	return errors.Join(errs...)
}

func initComponent(c Component) error {
	switch c {
	case Database:
		return database.Init()
	case Redis:
		return redis.Init()
	case MQ:
		return mq.Init()
	default:
		return fmt.Errorf("unknown storage component %q", c)
	}
}

func closeComponent(ctx context.Context, c Component) error {
	switch c {
	case Database:
		return database.Close(ctx)
	case Redis:
		return redis.Close(ctx)
	case MQ:
		return mq.Close(ctx)
	default:
		return nil
	}
}

// ordered 按 all 的顺序排列，忽略重复项
func ordered(components []Component) []Component {
	out := make([]Component, 0, len(components))
	for _, c := range all {
		if contains(components, c) {
			out = append(out, c)
		}
	}
	for _, c := range components {
		if !contains(all, c) {
			out = append(out, c)
		}
	}
	return out
}

func contains(list []Component, c Component) bool {
	for _, x := range list {
		if x == c {
			return true
		}
	}
	return false
}
