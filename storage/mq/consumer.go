package mq

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	pkgerrors "Plans/pkg/errors"
	"Plans/pkg/logger"
	pkgmq "Plans/pkg/mq"
)

type MessageHandler func(ctx context.Context, body []byte) error

type ConsumeOptions struct {
	Queue         string
	ConsumerTag   string
	PrefetchCount int
	Handler       MessageHandler
}

// Consume 阻塞直到 ctx 取消或连接关闭。
// 处理失败的消息重新入队一次，再次失败则丢弃；SkipMessageError 直接确认。
func Consume(ctx context.Context, opts ConsumeOptions) error {
	c := Connection()
	if c == nil {
		return errNotConnected
	}

	ch, err := c.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if opts.PrefetchCount > 0 {
		if err := ch.Qos(opts.PrefetchCount, 0, false); err != nil {
			return fmt.Errorf("failed to set QoS: %w", err)
		}
	}

	msgs, err := ch.ConsumeWithContext(ctx,
		opts.Queue,
		opts.ConsumerTag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	logger.Logger.Info("Started consuming messages",
		zap.String("queue", opts.Queue),
		zap.String("consumer_tag", opts.ConsumerTag),
		zap.Int("prefetch_count", opts.PrefetchCount),
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			handle(ctx, opts, msg)
		}
	}
}

func handle(ctx context.Context, opts ConsumeOptions, msg amqp.Delivery) {
	msgCtx, span := pkgmq.StartConsume(ctx, opts.Queue, msg)
	err := opts.Handler(msgCtx, msg.Body)
	pkgmq.End(span, err)

	fields := []zap.Field{
		zap.String("queue", opts.Queue),
		zap.String("message_id", msg.MessageId),
	}

	var skip *pkgerrors.SkipMessageError
	switch {
	case err == nil:
		_ = msg.Ack(false)
	case errors.As(err, &skip):
		logger.FromContext(msgCtx).Info("Message skipped", append(fields, zap.String("reason", skip.Reason))...)
		_ = msg.Ack(false)
	default:
		requeue := !msg.Redelivered
		logger.FromContext(msgCtx).Error("Failed to process message",
			append(fields, zap.Bool("requeue", requeue), zap.Error(err))...,
		)
		_ = msg.Nack(false, requeue)
	}
}
