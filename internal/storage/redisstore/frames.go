// Package redisstore is a Redis-backed frame store for deployments that share the
// frame log between processes.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"idle-arena/internal/event"
)

// Config configures the Redis frame store
type Config struct {
	Address  string
	Password string
	Database int
	Prefix   string        // Prepended to every key, e.g. "arena:"
	TTL      time.Duration // Frame expiry (0 = keep forever)
	Timeout  time.Duration // Per-operation deadline
	PoolSize int
}

// DefaultConfig returns defaults for address
func DefaultConfig(address string) Config {
	return Config{
		Address:  address,
		Prefix:   "arena:",
		Timeout:  5 * time.Second,
		PoolSize: 10,
	}
}

// FrameStore keeps each frame as one binary value plus a sorted-set index
// of frame numbers
type FrameStore struct {
	cfg    Config
	client *redis.Client
}

// NewFrameStore connects and pings the server
func NewFrameStore(cfg Config) (*FrameStore, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.Database,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", cfg.Address, err)
	}
	log.Printf("🧱 Redis frame store connected (%s, prefix %q)", cfg.Address, cfg.Prefix)
	return &FrameStore{cfg: cfg, client: client}, nil
}

func (s *FrameStore) frameKey(frame uint32) string {
	return s.cfg.Prefix + "frame:" + strconv.FormatUint(uint64(frame), 10)
}

func (s *FrameStore) indexKey() string {
	return s.cfg.Prefix + "frames"
}

// SaveFrame writes the frame and indexes it in one pipeline
func (s *FrameStore) SaveFrame(ctx context.Context, frame uint32, records []event.Record) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.frameKey(frame), event.EncodeRecords(records), s.cfg.TTL)
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(frame), Member: frame})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save frame %d: %w", frame, err)
	}
	return nil
}

func (s *FrameStore) LoadFrame(ctx context.Context, frame uint32) ([]event.Record, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	data, err := s.client.Get(ctx, s.frameKey(frame)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load frame %d: %w", frame, err)
	}
	records, err := event.DecodeRecords(data)
	if err != nil {
		return nil, true, fmt.Errorf("decode frame %d: %w", frame, err)
	}
	return records, true, nil
}

func (s *FrameStore) LoadRange(ctx context.Context, from, to uint32) ([]event.Record, error) {
	frames, err := s.Frames(ctx, from, to)
	if err != nil || len(frames) == 0 {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	keys := make([]string, len(frames))
	for i, f := range frames {
		keys[i] = s.frameKey(f)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load frames %d..%d: %w", from, to, err)
	}

	var out []event.Record
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			continue // Expired between the index read and MGET
		}
		records, err := event.DecodeRecords([]byte(str))
		if err != nil {
			return nil, fmt.Errorf("decode frame %d: %w", frames[i], err)
		}
		out = append(out, records...)
	}
	return out, nil
}

// Frames returns indexed frames in range whose value still exists.
// Index entries of expired frames are pruned.
func (s *FrameStore) Frames(ctx context.Context, from, to uint32) ([]uint32, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	members, err := s.client.ZRangeByScore(ctx, s.indexKey(), &redis.ZRangeBy{
		Min: strconv.FormatUint(uint64(from), 10),
		Max: strconv.FormatUint(uint64(to), 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list frames %d..%d: %w", from, to, err)
	}
	frames := make([]uint32, 0, len(members))
	for _, m := range members {
		f, err := strconv.ParseUint(m, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("bad frame index member %q: %w", m, err)
		}
		frames = append(frames, uint32(f))
	}
	if s.cfg.TTL <= 0 || len(frames) == 0 {
		return frames, nil
	}

	pipe := s.client.Pipeline()
	exists := make([]*redis.IntCmd, len(frames))
	for i, f := range frames {
		exists[i] = pipe.Exists(ctx, s.frameKey(f))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("list frames %d..%d: %w", from, to, err)
	}
	live := frames[:0]
	var stale []any
	for i, f := range frames {
		if exists[i].Val() > 0 {
			live = append(live, f)
		} else {
			stale = append(stale, f)
		}
	}
	if len(stale) > 0 {
		s.client.ZRem(ctx, s.indexKey(), stale...)
	}
	return live, nil
}

func (s *FrameStore) LastFrame(ctx context.Context) (uint32, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	members, err := s.client.ZRevRange(ctx, s.indexKey(), 0, 0).Result()
	if err != nil {
		return 0, fmt.Errorf("last frame: %w", err)
	}
	if len(members) == 0 {
		return 0, nil
	}
	f, err := strconv.ParseUint(members[0], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("bad frame index member %q: %w", members[0], err)
	}
	return uint32(f), nil
}

// Ping checks the connection
func (s *FrameStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	return s.client.Ping(ctx).Err()
}

// Close closes the client
func (s *FrameStore) Close() error {
	return s.client.Close()
}
