// internal/infrastructure/transport/broker/consumer.go
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/44dummies/tradermind-server-sub000/internal/types/events"
	"github.com/44dummies/tradermind-server-sub000/pkg/logger"
)

// consume is the per-subscription loop. Every iteration first claims entries
// abandoned by any consumer of the group for longer than ClaimMinIdle, then
// blocks for at most Block waiting for new entries.
func (b *Broker) consume(ctx context.Context, sub *subscription) {
	defer close(sub.done)

	stream := b.streamKey(sub.topic)
	var (
		conn       *redis.Conn
		groupReady bool
	)
	defer func() {
		if conn != nil {
			conn.Close()
		}
	}()

	for ctx.Err() == nil {
		if !b.IsReady() {
			b.pause(ctx)
			continue
		}

		if !groupReady {
			if err := b.ensureGroup(ctx, stream, sub.group); err != nil {
				logger.Warn("⚠️ Consumer group %s on %s: %v", sub.group, stream, err)
				b.pause(ctx)
				continue
			}
			groupReady = true
		}

		if conn == nil {
			conn = b.client.Conn(ctx)
		}

		if err := b.claimStale(ctx, sub, stream); err != nil && ctx.Err() == nil {
			logger.Warn("⚠️ Claim on %s failed: %v", stream, err)
		}

		res, err := conn.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    sub.group,
			Consumer: b.cfg.ConsumerName,
			Streams:  []string{stream, ">"},
			Count:    b.cfg.BatchSize,
			Block:    b.cfg.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			if isNoGroup(err) {
				groupReady = false
				continue
			}
			logger.Warn("⚠️ XREADGROUP %s failed: %v", stream, err)
			conn.Close()
			conn = nil
			if !isServerError(err) {
				b.markUnreachable(err)
			}
			b.pause(ctx)
			continue
		}

		for _, s := range res {
			for _, msg := range s.Messages {
				b.process(ctx, sub, stream, msg)
			}
		}
	}
}

// claimStale takes ownership of entries idle for at least ClaimMinIdle. This
// covers crashed consumers and entries whose handler failed here earlier.
// Entries already delivered MaxDeliveries times are acked as dead instead, so
// they stop shadowing newer pending entries.
func (b *Broker) claimStale(ctx context.Context, sub *subscription, stream string) error {
	pending, err := b.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  sub.group,
		Start:  "-",
		End:    "+",
		Count:  b.cfg.BatchSize,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}

	var ids []string
	for _, p := range pending {
		if p.Idle < b.cfg.ClaimMinIdle {
			continue
		}
		if p.RetryCount >= b.cfg.MaxDeliveries {
			b.metrics.Dead.Add(1)
			logger.Error("☠️ Entry %s on %s failed %d deliveries to %s, acked as dead",
				p.ID, stream, p.RetryCount, sub.group)
			b.ack(ctx, stream, sub.group, p.ID)
			continue
		}
		ids = append(ids, p.ID)
	}
	if len(ids) == 0 {
		return nil
	}

	msgs, err := b.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   stream,
		Group:    sub.group,
		Consumer: b.cfg.ConsumerName,
		MinIdle:  b.cfg.ClaimMinIdle,
		Messages: ids,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}

	b.metrics.Claimed.Add(int64(len(msgs)))
	for _, msg := range msgs {
		b.process(ctx, sub, stream, msg)
	}
	return nil
}

func (b *Broker) process(ctx context.Context, sub *subscription, stream string, msg redis.XMessage) {
	env, err := decodeMessage(msg)
	if err != nil {
		// Undecodable entries can never succeed; ack so they stop cycling.
		logger.Error("❌ Dropping entry %s on %s: %v", msg.ID, stream, err)
		b.metrics.Failed.Add(1)
		b.ack(ctx, stream, sub.group, msg.ID)
		return
	}

	if err := b.deliver(ctx, sub, env); err != nil {
		logger.Warn("⚠️ %s failed on %s (%s, correlation %s): %v; left pending",
			sub.name, env.Type, env.ID, env.CorrelationID, err)
		return
	}
	b.ack(ctx, stream, sub.group, msg.ID)
}

// deliver runs the handler unless the envelope was already processed by this group.
// It is shared by stream and direct mode.
func (b *Broker) deliver(ctx context.Context, sub *subscription, env events.Envelope) error {
	key := sub.group + ":" + string(sub.topic) + ":" + env.ID

	if b.dedup != nil {
		seen, err := b.dedup.Seen(ctx, key)
		if err != nil {
			logger.Debug("⚠️ Idempotency lookup for %s failed: %v", env.ID, err)
		} else if seen {
			b.metrics.Duplicates.Add(1)
			logger.Debug("♻️ Duplicate %s (%s) skipped by %s", env.Type, env.ID, sub.name)
			return nil
		}
	}

	b.metrics.Delivered.Add(1)
	if err := safeHandle(ctx, sub.handler, env); err != nil {
		b.metrics.Failed.Add(1)
		return err
	}

	if b.dedup != nil {
		if _, err := b.dedup.Mark(ctx, key); err != nil {
			logger.Debug("⚠️ Idempotency mark for %s failed: %v", env.ID, err)
		}
	}
	return nil
}

func (b *Broker) ack(ctx context.Context, stream, group, id string) {
	if err := b.client.XAck(ctx, stream, group, id).Err(); err != nil {
		logger.Warn("⚠️ XACK %s %s failed: %v", stream, id, err)
		return
	}
	b.metrics.Acked.Add(1)
}

func (b *Broker) ensureGroup(ctx context.Context, stream, group string) error {
	err := b.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// pause waits one block interval or until ctx ends.
func (b *Broker) pause(ctx context.Context) {
	t := time.NewTimer(b.cfg.Block)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func decodeMessage(msg redis.XMessage) (events.Envelope, error) {
	raw, ok := msg.Values[envelopeField]
	if !ok {
		return events.Envelope{}, fmt.Errorf("missing %q field", envelopeField)
	}
	var data []byte
	switch v := raw.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return events.Envelope{}, fmt.Errorf("unexpected %q field type %T", envelopeField, raw)
	}

	var env events.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return events.Envelope{}, err
	}
	return env, env.Validate()
}

func safeHandle(ctx context.Context, handler Handler, env events.Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("⚠️ Handler panic on %s (%s): %v\n%s", env.Type, env.ID, r, debug.Stack())
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, env)
}

func isNoGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "NOGROUP")
}
