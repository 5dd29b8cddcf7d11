package idempotency

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	id "evidenceledger/pkg/domain"
	"evidenceledger/pkg/platform/sentinel"
)

var acquireDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "evidence_idempotency_acquire_duration_ms",
	Help:    "Latency of idempotency key acquisition against Redis in milliseconds",
	Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
})

const redisKeyPrefix = "idem:"

// acquireScript stores the candidate unless a live record blocks it, then
// replies with {acquired, HGETALL...}. Expired records are gone through PEXPIRE.
//
// ARGV: fingerprint, operation, now_ms, lease_expires_at_ms, expires_at_ms, ttl_ms, lease_token
var acquireScript = redis.NewScript(`
local function reply(flag)
  local r = redis.call('HGETALL', KEYS[1])
  table.insert(r, 1, flag)
  return r
end
local status = redis.call('HGET', KEYS[1], 'status')
if status then
  local fp = redis.call('HGET', KEYS[1], 'fingerprint')
  if fp ~= ARGV[1] or status == 'SUCCEEDED' then
    return reply(0)
  end
  if status == 'IN_PROGRESS' then
    local lease = tonumber(redis.call('HGET', KEYS[1], 'lease_expires_at_ms'))
    if lease > tonumber(ARGV[3]) then
      return reply(0)
    end
  end
end
redis.call('DEL', KEYS[1])
redis.call('HSET', KEYS[1],
  'fingerprint', ARGV[1],
  'lease_token', ARGV[7],
  'operation', ARGV[2],
  'status', 'IN_PROGRESS',
  'created_at_ms', ARGV[3],
  'updated_at_ms', ARGV[3],
  'lease_expires_at_ms', ARGV[4],
  'expires_at_ms', ARGV[5])
redis.call('PEXPIRE', KEYS[1], ARGV[6])
return reply(1)
`)

// completeScript finalizes a record only while the caller's lease token is
// still the stored one. Replies 1 on success, 0 when the record is gone and
// -1 when another execution holds the lease.
//
// ARGV: lease_token, status, response, now_ms
var completeScript = redis.NewScript(`
local token = redis.call('HGET', KEYS[1], 'lease_token')
if not token then
  return 0
end
if token ~= ARGV[1] then
  return -1
end
redis.call('HSET', KEYS[1], 'status', ARGV[2], 'response', ARGV[3], 'updated_at_ms', ARGV[4])
return 1
`)

// RedisStore keeps idempotency records as Redis hashes keyed by tenant and key.
// Both transitions run as Lua scripts so Acquire is a single atomic step.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(tenantID id.TenantID, key string) string {
	return redisKeyPrefix + tenantID.String() + ":" + key
}

func (s *RedisStore) Acquire(ctx context.Context, candidate *Record) (bool, *Record, error) {
	start := time.Now()
	defer func() {
		acquireDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	ttl := candidate.ExpiresAt.Sub(candidate.CreatedAt)
	res, err := acquireScript.Run(ctx, s.client,
		[]string{redisKey(candidate.TenantID, candidate.Key)},
		candidate.Fingerprint,
		candidate.Operation,
		candidate.CreatedAt.UnixMilli(),
		candidate.LeaseExpiresAt.UnixMilli(),
		candidate.ExpiresAt.UnixMilli(),
		ttl.Milliseconds(),
		candidate.LeaseToken,
	).Slice()
	if err != nil {
		return false, nil, fmt.Errorf("acquire idempotency key: %w", err)
	}
	if len(res) == 0 {
		return false, nil, fmt.Errorf("acquire idempotency key: empty script reply")
	}
	flag, _ := res[0].(int64)
	if flag == 1 {
		return true, nil, nil
	}
	current, err := decodeRedisRecord(candidate.TenantID, candidate.Key, res[1:])
	if err != nil {
		return false, nil, err
	}
	return false, current, nil
}

func (s *RedisStore) Complete(ctx context.Context, tenantID id.TenantID, key, leaseToken string, status Status, response []byte, now time.Time) error {
	n, err := completeScript.Run(ctx, s.client,
		[]string{redisKey(tenantID, key)},
		leaseToken, string(status), string(response), now.UnixMilli(),
	).Int64()
	if err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return sentinel.ErrNotFound
	default:
		return ErrLeaseLost
	}
}

func decodeRedisRecord(tenantID id.TenantID, key string, pairs []any) (*Record, error) {
	fields := make(map[string]string, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		k, _ := pairs[i].(string)
		v, _ := pairs[i+1].(string)
		fields[k] = v
	}
	if fields["status"] == "" {
		return nil, fmt.Errorf("decode idempotency record: %w", sentinel.ErrNotFound)
	}
	rec := &Record{
		TenantID:    tenantID,
		Key:         key,
		Operation:   fields["operation"],
		Fingerprint: fields["fingerprint"],
		LeaseToken:  fields["lease_token"],
		Status:      Status(fields["status"]),
	}
	if resp, ok := fields["response"]; ok && resp != "" {
		rec.Response = []byte(resp)
	}
	var err error
	if rec.CreatedAt, err = millis(fields["created_at_ms"]); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = millis(fields["updated_at_ms"]); err != nil {
		return nil, err
	}
	if rec.LeaseExpiresAt, err = millis(fields["lease_expires_at_ms"]); err != nil {
		return nil, err
	}
	if rec.ExpiresAt, err = millis(fields["expires_at_ms"]); err != nil {
		return nil, err
	}
	return rec, nil
}

func millis(v string) (time.Time, error) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("decode idempotency timestamp %q: %w", v, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}
