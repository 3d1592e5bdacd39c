package redis

const (
	// saveSnapshotScript stores a snapshot and publishes it when its state
	// differs from the stored one. Returns 1 when published.
	saveSnapshotScript = `
local status_key = KEYS[1]     -- pioverlay:status

local channel = ARGV[1]
local state = ARGV[2]
local updated_at = ARGV[3]
local message = ARGV[4]

local previous = redis.call('HGET', status_key, 'state')

redis.call('HSET', status_key,
  'state', state,
  'updated_at', updated_at,
  'json', message
)

if previous == state then
  return 0
end

redis.call('PUBLISH', channel, message)
return 1
`
)
