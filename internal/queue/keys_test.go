package queue

import (
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyLayout(t *testing.T) {
	assert.Equal(t, "queue:posting:wait", waitKey("posting"))
	assert.Equal(t, "queue:posting:active", activeKey("posting"))
	assert.Equal(t, "queue:posting:delayed", delayedKey("posting"))
	assert.Equal(t, "queue:posting:completed", completedKey("posting"))
	assert.Equal(t, "queue:posting:failed", failedKey("posting"))
	assert.Equal(t, "queue:posting:paused", pausedKey("posting"))
}

func TestNewRedisQueue_Validation(t *testing.T) {
	_, err := NewRedisQueue(RedisQueueOptions{Name: "posting"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis client")

	// Construction never dials, so an unconnected client is fine here.
	_, err = NewRedisQueue(RedisQueueOptions{Client: redis.NewClient(&redis.Options{})})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue name")
}
