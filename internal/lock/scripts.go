package lock

import "github.com/redis/go-redis/v9"

// KEYS[1] scope key, KEYS[2] holders key. ARGV token, ttl ms, now ms.
// A scope lock waits until no member lock of the same scope is held.
var acquireScopeScript = redis.NewScript(`
redis.call("ZREMRANGEBYSCORE", KEYS[2], "-inf", ARGV[3])
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
if redis.call("ZCARD", KEYS[2]) > 0 then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
return 1
`)

// KEYS[1] scope key, KEYS[2] holders key, KEYS[3..] member keys. ARGV token, ttl ms, now ms.
// Member locks are all-or-nothing and register their holder on the scope.
var acquireMembersScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
for i = 3, #KEYS do
  if redis.call("EXISTS", KEYS[i]) == 1 then
    return 0
  end
end
for i = 3, #KEYS do
  redis.call("SET", KEYS[i], ARGV[1], "PX", ARGV[2])
end
redis.call("ZADD", KEYS[2], tonumber(ARGV[3]) + tonumber(ARGV[2]), ARGV[1])
return 1
`)

// KEYS[1] holders key, KEYS[2..] owned keys. ARGV token, ttl ms, now ms.
var renewScript = redis.NewScript(`
for i = 2, #KEYS do
  if redis.call("GET", KEYS[i]) ~= ARGV[1] then
    return 0
  end
end
for i = 2, #KEYS do
  redis.call("PEXPIRE", KEYS[i], ARGV[2])
end
if redis.call("ZSCORE", KEYS[1], ARGV[1]) then
  redis.call("ZADD", KEYS[1], tonumber(ARGV[3]) + tonumber(ARGV[2]), ARGV[1])
end
return 1
`)

// KEYS[1] holders key, KEYS[2..] owned keys. ARGV token.
var releaseScript = redis.NewScript(`
for i = 2, #KEYS do
  if redis.call("GET", KEYS[i]) == ARGV[1] then
    redis.call("DEL", KEYS[i])
  end
end
redis.call("ZREM", KEYS[1], ARGV[1])
return 1
`)
