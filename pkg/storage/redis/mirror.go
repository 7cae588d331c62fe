package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"volumetracker/config"
	"volumetracker/internal/quote"

	goredis "github.com/redis/go-redis/v9"
)

// Client is the subset of *redis.Client the mirror uses.
type Client interface {
	Ping(ctx context.Context) *goredis.StatusCmd
	Pipeline() goredis.Pipeliner
	MGet(ctx context.Context, keys ...string) *goredis.SliceCmd
	Close() error
}

// Mirror keeps the latest snapshot of every symbol under key_prefix+symbol
// and publishes each write on channel_prefix+symbol.
type Mirror struct {
	client        Client
	keyPrefix     string
	channelPrefix string
	ttl           time.Duration
	loc           *time.Location // zone of the stored timestamps
}

func NewMirror(client Client, keyPrefix, channelPrefix string, ttl time.Duration) *Mirror {
	return &Mirror{
		client:        client,
		keyPrefix:     keyPrefix,
		channelPrefix: channelPrefix,
		ttl:           ttl,
		loc:           time.UTC,
	}
}

// WithLocation sets the zone snapshot timestamps are written in, so Get
// returns them unchanged.
func (m *Mirror) WithLocation(loc *time.Location) *Mirror {
	if loc != nil {
		m.loc = loc
	}
	return m
}

// Connect dials Redis and verifies the connection.
func Connect(ctx context.Context, cfg config.RedisConfig) (*Mirror, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return NewMirror(rdb, cfg.KeyPrefix, cfg.ChannelPrefix, cfg.TTL), nil
}

func (m *Mirror) Name() string { return "redis" }

// Publish writes every snapshot in one pipeline.
func (m *Mirror) Publish(ctx context.Context, snaps []quote.Snapshot) error {
	pipe := m.client.Pipeline()
	for _, snap := range snaps {
		payload, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("encode %s: %w", snap.Symbol, err)
		}
		pipe.Set(ctx, m.keyPrefix+snap.Symbol, payload, m.ttl) // TTL drops symbols that stop updating
		pipe.Publish(ctx, m.channelPrefix+snap.Symbol, payload)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	return nil
}

// Get reads back the mirrored snapshots of symbols. Missing keys are skipped.
func (m *Mirror) Get(ctx context.Context, symbols ...string) (map[string]quote.Snapshot, error) {
	if len(symbols) == 0 {
		return map[string]quote.Snapshot{}, nil
	}

	keys := make([]string, len(symbols))
	for i, sym := range symbols {
		keys[i] = m.keyPrefix + sym
	}

	values, err := m.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	out := make(map[string]quote.Snapshot, len(values))
	for i, v := range values {
		payload, ok := v.(string)
		if !ok || payload == "" {
			continue
		}
		snap, err := quote.DecodeSnapshot([]byte(payload), m.loc)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", symbols[i], err)
		}
		out[symbols[i]] = snap
	}
	return out, nil
}

func (m *Mirror) Close() error {
	return m.client.Close()
}
