package redis

import (
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insightcache/cache"
	C "insightcache/config"
)

func setupTestRedis(t *testing.T) {
	server := miniredis.RunT(t)
	port, err := strconv.Atoi(server.Port())
	require.NoError(t, err)

	C.InitConf(&C.Configuration{Env: C.DEVELOPMENT, StoreType: C.StoreTypeMemory})
	C.InitRedisConnection(server.Host(), port, 5)
}

func testKey(t *testing.T, suffix string) *cache.Key {
	key, err := cache.NewKey(1, "test", suffix)
	require.NoError(t, err)
	return key
}

func TestSetAndGet(t *testing.T) {
	setupTestRedis(t)
	key := testKey(t, "result")

	assert.Nil(t, Set(key, `{"count":5}`, 60))

	value, err := Get(key)
	assert.Nil(t, err)
	assert.Equal(t, `{"count":5}`, value)
}

func TestGetIfExistsOnMissingKey(t *testing.T) {
	setupTestRedis(t)

	value, exists, err := GetIfExists(testKey(t, "missing"))
	assert.Nil(t, err)
	assert.False(t, exists)
	assert.Equal(t, "", value)
}

func TestTouchExtendsExistingKeyOnly(t *testing.T) {
	setupTestRedis(t)
	key := testKey(t, "result")

	touched, err := Touch(key, 60)
	assert.Nil(t, err)
	assert.False(t, touched)

	assert.Nil(t, Set(key, "value", 60))
	touched, err = Touch(key, 120)
	assert.Nil(t, err)
	assert.True(t, touched)
}

func TestDelAndExists(t *testing.T) {
	setupTestRedis(t)
	key := testKey(t, "result")

	assert.Nil(t, Set(key, "value", 0))
	exists, err := Exists(key)
	assert.Nil(t, err)
	assert.True(t, exists)

	assert.Nil(t, Del(key))
	exists, err = Exists(key)
	assert.Nil(t, err)
	assert.False(t, exists)
}

func TestSAddWithExpiryAndSMembers(t *testing.T) {
	setupTestRedis(t)
	key, err := cache.NewKeyWithOnlyPrefix("active_projects")
	require.NoError(t, err)

	assert.Nil(t, SAddWithExpiry(key, 60, 1, 2, 3))
	assert.Nil(t, SAddWithExpiry(key, 60, 3, 4))

	members, err := SMembersUint64(key)
	assert.Nil(t, err)
	assert.ElementsMatch(t, []uint64{1, 2, 3, 4}, members)
}
