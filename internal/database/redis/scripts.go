package redis

const (
	// addTimeScript atomically refreshes the display name and increments the
	// total and daily counters for one activity. An empty name leaves the
	// stored one untouched.
	addTimeScript = `
local names_key = KEYS[1]   -- playtime:names
local updated_key = KEYS[2] -- playtime:names:updated
local total_key = KEYS[3]   -- playtime:totals:{userID}
local daily_key = KEYS[4]   -- playtime:daily:{userID}:{day}

local user_id = ARGV[1]
local name = ARGV[2]
local updated_at = ARGV[3]
local activity = ARGV[4]
local seconds = tonumber(ARGV[5])

if name ~= '' then
  redis.call('HSET', names_key, user_id, name)
  redis.call('HSET', updated_key, user_id, updated_at)
end
redis.call('HINCRBY', total_key, activity, seconds)
redis.call('HINCRBY', daily_key, activity, seconds)

return 'OK'
`
)
