package mq

import (
	"context"
	"time"

	"contestjudge/pkg/utils/logger"

	"go.uber.org/zap"
)

// deliver runs handler with retries, then dead-letters. It returns once the
// message may be acknowledged.
func deliver(ctx context.Context, topic string, handler HandlerFunc, m *Message, opts SubscribeOptions, publish func(context.Context, string, *Message) error) {
	if m.MaxRetries == 0 {
		m.MaxRetries = opts.MaxRetries
	}
	if m.Expiration == 0 && opts.MessageTTL > 0 {
		m.Expiration = opts.MessageTTL
	}
	if m.Expiration > 0 && !m.Timestamp.IsZero() && time.Since(m.Timestamp) > m.Expiration {
		logger.Warn(ctx, "drop expired message", zap.String("topic", topic), zap.String("message_id", m.ID))
		return
	}

	for {
		err := safeHandle(ctx, handler, m)
		if err == nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		m.RetryCount++
		if m.RetryCount > m.MaxRetries {
			logger.Error(ctx, "message retries exhausted",
				zap.String("topic", topic),
				zap.String("message_id", m.ID),
				zap.Int("retries", m.RetryCount-1),
				zap.Error(err),
			)
			if opts.DeadLetterTopic != "" && publish != nil {
				if dlErr := publish(ctx, opts.DeadLetterTopic, m); dlErr != nil {
					logger.Error(ctx, "publish dead letter failed", zap.String("topic", opts.DeadLetterTopic), zap.Error(dlErr))
				}
			}
			return
		}
		logger.Warn(ctx, "message handler failed, retrying",
			zap.String("topic", topic),
			zap.String("message_id", m.ID),
			zap.Int("retry", m.RetryCount),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return
		case <-time.After(opts.RetryDelay):
		}
	}
}

func safeHandle(ctx context.Context, handler HandlerFunc, m *Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error(ctx, "message handler panic", zap.String("message_id", m.ID), zap.Any("panic", r))
			err = errPanic
		}
	}()
	return handler(ctx, m)
}
