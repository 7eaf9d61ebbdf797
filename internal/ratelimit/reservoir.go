package ratelimit

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "listingd:reservoir:"

// Common refill prologue: KEYS[1] reservoir, ARGV size, amount, interval ms, now ms.
// Whole elapsed intervals add amount tokens each, never above size; a negative
// (penalized) reservoir climbs back the same way.
const refillLua = `
local size = tonumber(ARGV[1])
local amount = tonumber(ARGV[2])
local interval = tonumber(ARGV[3])
local now = tonumber(ARGV[4])
local tokens = tonumber(redis.call("HGET", KEYS[1], "tokens"))
local refilled = tonumber(redis.call("HGET", KEYS[1], "refilled_at"))
if tokens == nil or refilled == nil then
  tokens = size
  refilled = now
end
if now > refilled then
  local steps = math.floor((now - refilled) / interval)
  if steps > 0 then
    if tokens < size then
      tokens = math.min(size, tokens + steps * amount)
    end
    refilled = refilled + steps * interval
  end
end
`

var takeScript = redis.NewScript(refillLua + `
local ok = 0
if tokens >= 1 then
  tokens = tokens - 1
  ok = 1
end
redis.call("HSET", KEYS[1], "tokens", tokens, "refilled_at", refilled)
local wait = 0
if ok == 0 then
  local steps = math.ceil((1 - tokens) / amount)
  wait = refilled + steps * interval - now
end
return {ok, tokens, wait}
`)

// ARGV[5] deficit. Empties the reservoir and digs deficit tokens below zero.
var penalizeScript = redis.NewScript(refillLua + `
local deficit = tonumber(ARGV[5])
local available = math.max(tokens, 0)
tokens = tokens - (available + deficit)
redis.call("HSET", KEYS[1], "tokens", tokens, "refilled_at", refilled)
return tokens
`)

// Config describes an account's request budget
type Config struct {
	Size           int           // reservoir cap, also the initial amount
	RefillAmount   int           // tokens added per interval
	RefillInterval time.Duration // refill period
	DefaultBackoff time.Duration // used when a rate-limit response carries no usable hint
}

// Reservoir is a token bucket per account kept in Redis. All updates are
// single Lua scripts so concurrent workers never need the lock manager.
type Reservoir struct {
	client *redis.Client
	cfg    Config
	now    func() time.Time
}

// NewReservoir creates a reservoir manager
func NewReservoir(client *redis.Client, cfg Config) *Reservoir {
	if cfg.Size < 1 {
		cfg.Size = 1
	}
	if cfg.RefillAmount < 1 {
		cfg.RefillAmount = 1
	}
	if cfg.RefillInterval <= 0 {
		cfg.RefillInterval = time.Second
	}
	if cfg.DefaultBackoff <= 0 {
		cfg.DefaultBackoff = time.Minute
	}
	return &Reservoir{client: client, cfg: cfg, now: time.Now}
}

// Key returns the Redis key of an account's reservoir
func Key(steamid string) string {
	return keyPrefix + steamid
}

func (r *Reservoir) args(extra ...interface{}) []interface{} {
	args := []interface{}{
		r.cfg.Size,
		r.cfg.RefillAmount,
		r.cfg.RefillInterval.Milliseconds(),
		r.now().UnixMilli(),
	}
	return append(args, extra...)
}

// Take consumes one token. When none is available it reports how long until one will be.
func (r *Reservoir) Take(ctx context.Context, steamid string) (bool, time.Duration, error) {
	res, err := takeScript.Run(ctx, r.client, []string{Key(steamid)}, r.args()...).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("failed to take from reservoir: %w", err)
	}
	if len(res) != 3 {
		return false, 0, fmt.Errorf("unexpected reservoir reply %v", res)
	}
	return res[0] == 1, time.Duration(res[2]) * time.Millisecond, nil
}

// Backoff returns the server hint, or the default backoff when there was none
func (r *Reservoir) Backoff(retryAfter time.Duration) time.Duration {
	if retryAfter <= 0 {
		return r.cfg.DefaultBackoff
	}
	return retryAfter
}

// Deficit translates a server retry hint into the number of tokens to withhold
func (r *Reservoir) Deficit(retryAfter time.Duration) int {
	retryAfter = r.Backoff(retryAfter)
	n := int(math.Ceil(float64(retryAfter) / float64(r.cfg.RefillInterval)))
	if n > r.cfg.Size {
		n = r.cfg.Size
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Penalize drains the reservoir after a rate-limit response and returns the new token count
func (r *Reservoir) Penalize(ctx context.Context, steamid string, retryAfter time.Duration) (int64, error) {
	deficit := r.Deficit(retryAfter)
	tokens, err := penalizeScript.Run(ctx, r.client, []string{Key(steamid)}, r.args(deficit)...).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to penalize reservoir: %w", err)
	}
	return tokens, nil
}

// Tokens returns the stored token count without refilling. A reservoir never used reports Size.
func (r *Reservoir) Tokens(ctx context.Context, steamid string) (int64, error) {
	raw, err := r.client.HGet(ctx, Key(steamid), "tokens").Result()
	if err == redis.Nil {
		return int64(r.cfg.Size), nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read reservoir: %w", err)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid reservoir value %q: %w", raw, err)
	}
	return int64(f), nil
}

// Reset forgets an account's reservoir
func (r *Reservoir) Reset(ctx context.Context, steamid string) error {
	return r.client.Del(ctx, Key(steamid)).Err()
}
