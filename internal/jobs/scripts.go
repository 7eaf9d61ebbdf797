package jobs

import "github.com/redis/go-redis/v9"

// KEYS ready, meta. ARGV id, score, now ms.
var enqueueScript = redis.NewScript(`
local added = redis.call("ZADD", KEYS[1], "NX", ARGV[2], ARGV[1])
if added == 1 then
  redis.call("HSETNX", KEYS[2], "first", ARGV[3])
  redis.call("HSETNX", KEYS[2], "attempts", 0)
end
return added
`)

// KEYS ready, active. ARGV now ms, visibility ms, meta prefix.
// Returns {id, attempts, first} for the first due job that is not already running.
// Due jobs are scanned a page at a time until one is free.
var claimScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local page = 16
local offset = 0
while true do
  local ids = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", now, "LIMIT", offset, page)
  for _, id in ipairs(ids) do
    if not redis.call("ZSCORE", KEYS[2], id) then
      redis.call("ZREM", KEYS[1], id)
      redis.call("ZADD", KEYS[2], now + tonumber(ARGV[2]), id)
      local meta = ARGV[3] .. id
      local attempts = redis.call("HGET", meta, "attempts") or "0"
      local first = redis.call("HGET", meta, "first") or ARGV[1]
      return {id, attempts, first}
    end
  end
  if #ids < page then
    return false
  end
  offset = offset + page
end
`)

// KEYS active, ready, meta. ARGV id, now ms.
// A job enqueued again while it ran starts a fresh history.
var ackScript = redis.NewScript(`
redis.call("ZREM", KEYS[1], ARGV[1])
if redis.call("ZSCORE", KEYS[2], ARGV[1]) then
  redis.call("HSET", KEYS[3], "first", ARGV[2], "attempts", 0)
else
  redis.call("DEL", KEYS[3])
end
return 1
`)

// KEYS active, ready, meta. ARGV id, score.
// Keeps the earlier run time when the job was enqueued again meanwhile.
var retryScript = redis.NewScript(`
redis.call("ZREM", KEYS[1], ARGV[1])
redis.call("HINCRBY", KEYS[3], "attempts", 1)
local score = tonumber(ARGV[2])
local cur = redis.call("ZSCORE", KEYS[2], ARGV[1])
if (not cur) or tonumber(cur) > score then
  redis.call("ZADD", KEYS[2], score, ARGV[1])
end
return 1
`)

// KEYS active, ready. ARGV now ms.
var reapScript = redis.NewScript(`
local ids = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
for _, id in ipairs(ids) do
  redis.call("ZREM", KEYS[1], id)
  redis.call("ZADD", KEYS[2], "NX", ARGV[1], id)
end
return #ids
`)
