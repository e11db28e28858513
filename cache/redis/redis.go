package redis

import (
	"errors"

	"github.com/gomodule/redigo/redis"

	"insightcache/cache"
	C "insightcache/config"
)

// Freshness store over redis. Values are opaque blobs set with a TTL;
// Touch extends an existing entry without rewriting it.

func Set(key *cache.Key, value string, expiryInSecs float64) error {
	if key == nil {
		return cache.ErrorInvalidKey
	}

	if value == "" {
		return errors.New("empty cache key value")
	}

	cKey, err := key.Key()
	if err != nil {
		return err
	}

	redisConn := C.GetCacheRedisConnection()
	defer redisConn.Close()

	if expiryInSecs == 0 {
		_, err = redisConn.Do("SET", cKey, value)
	} else {
		_, err = redisConn.Do("SET", cKey, value, "EX", expiryInSecs)
	}

	return err
}

func Get(key *cache.Key) (string, error) {
	if key == nil {
		return "", cache.ErrorInvalidKey
	}

	cKey, err := key.Key()
	if err != nil {
		return "", err
	}

	redisConn := C.GetCacheRedisConnection()
	defer redisConn.Close()

	return redis.String(redisConn.Do("GET", cKey))
}

// GetIfExists Returns value and whether the key was present. Avoids
// treating a cache miss as an error on the read path.
func GetIfExists(key *cache.Key) (string, bool, error) {
	value, err := Get(key)
	if err == redis.ErrNil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// Touch Extends the TTL of an existing key. Returns false when the key
// does not exist, without error.
func Touch(key *cache.Key, expiryInSecs float64) (bool, error) {
	if key == nil {
		return false, cache.ErrorInvalidKey
	}

	cKey, err := key.Key()
	if err != nil {
		return false, err
	}

	redisConn := C.GetCacheRedisConnection()
	defer redisConn.Close()

	count, err := redis.Int(redisConn.Do("EXPIRE", cKey, int64(expiryInSecs)))
	if err != nil {
		return false, err
	}
	return count == 1, nil
}

func Del(key *cache.Key) error {
	if key == nil {
		return cache.ErrorInvalidKey
	}

	cKey, err := key.Key()
	if err != nil {
		return err
	}

	redisConn := C.GetCacheRedisConnection()
	defer redisConn.Close()

	_, err = redisConn.Do("DEL", cKey)
	return err
}

// Exists Checks if a key exists in Redis.
func Exists(key *cache.Key) (bool, error) {
	if key == nil {
		return false, cache.ErrorInvalidKey
	}

	cKey, err := key.Key()
	if err != nil {
		return false, err
	}

	redisConn := C.GetCacheRedisConnection()
	defer redisConn.Close()

	count, err := redisConn.Do("EXISTS", cKey)
	if err != nil {
		return false, err
	}
	return count.(int64) == 1, nil
}

// SAddWithExpiry Adds members to a set and refreshes the set's TTL.
// Used for the recently active projects index.
func SAddWithExpiry(key *cache.Key, expiryInSecs float64, members ...uint64) error {
	if key == nil {
		return cache.ErrorInvalidKey
	}

	if len(members) == 0 {
		return errors.New("no members to add")
	}

	cKey, err := key.Key()
	if err != nil {
		return err
	}

	redisConn := C.GetCacheRedisConnection()
	defer redisConn.Close()

	args := make([]interface{}, 0, len(members)+1)
	args = append(args, cKey)
	for _, member := range members {
		args = append(args, member)
	}
	if _, err = redisConn.Do("SADD", args...); err != nil {
		return err
	}

	_, err = redisConn.Do("EXPIRE", cKey, int64(expiryInSecs))
	return err
}

// SMembersUint64 Returns all members of a set parsed as uint64.
func SMembersUint64(key *cache.Key) ([]uint64, error) {
	var members []uint64
	if key == nil {
		return members, cache.ErrorInvalidKey
	}

	cKey, err := key.Key()
	if err != nil {
		return members, err
	}

	redisConn := C.GetCacheRedisConnection()
	defer redisConn.Close()

	values, err := redis.Values(redisConn.Do("SMEMBERS", cKey))
	if err != nil {
		return members, err
	}

	if err := redis.ScanSlice(values, &members); err != nil {
		return members, err
	}
	return members, nil
}
