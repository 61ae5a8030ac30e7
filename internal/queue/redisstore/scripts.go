package redisstore

import "github.com/redis/go-redis/v9"

// claimScript pops the earliest eligible id from the first non-empty band set.
// KEYS: queued sets in priority order, then the processing set.
// ARGV: now (micros), now (formatted), worker id, item key prefix.
var claimScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local processing = KEYS[#KEYS]
for i = 1, #KEYS - 1 do
	local ids = redis.call('ZRANGEBYSCORE', KEYS[i], '-inf', now, 'LIMIT', 0, 1)
	if #ids > 0 then
		local id = ids[1]
		local key = ARGV[4] .. id
		redis.call('ZREM', KEYS[i], id)
		redis.call('HSET', key, 'status', 'processing', 'worker_id', ARGV[3], 'started_at', ARGV[2])
		redis.call('ZADD', processing, now, id)
		return redis.call('HGETALL', key)
	end
end
return false
`)

// requeueScript moves claimed items started before the cutoff back to their band.
// KEYS: processing set. ARGV: max score (inclusive form), item key prefix, queued key prefix.
var requeueScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
for _, id in ipairs(ids) do
	local key = ARGV[2] .. id
	local fields = redis.call('HMGET', key, 'priority', 'scheduled_score')
	redis.call('ZREM', KEYS[1], id)
	if fields[1] then
		redis.call('HSET', key, 'status', 'queued', 'worker_id', '', 'started_at', '')
		redis.call('ZADD', ARGV[3] .. fields[1], fields[2], id)
	end
end
return #ids
`)

// purgeScript deletes terminal items indexed below the cutoff.
// KEYS: completed or dead set. ARGV: max score (exclusive form), item key prefix.
var purgeScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
for _, id in ipairs(ids) do
	redis.call('DEL', ARGV[2] .. id)
	redis.call('ZREM', KEYS[1], id)
end
return #ids
`)
