// Package queue is the Redis boundary to the external job queue. The queue
// owns delivery and retry policy; this package implements only the thin
// consume/ack surface the worker needs plus read-only depth inspection for
// the stats collector.
package queue

// Key layout per queue name. Waiting and active are lists; delayed, completed
// and failed are timestamp-scored sorted sets; the paused marker is a plain key.
const (
	keyPrefix = "queue:"

	waitSuffix      = ":wait"
	activeSuffix    = ":active"
	delayedSuffix   = ":delayed"
	completedSuffix = ":completed"
	failedSuffix    = ":failed"
	pausedSuffix    = ":paused"
)

func waitKey(queueName string) string      { return keyPrefix + queueName + waitSuffix }
func activeKey(queueName string) string    { return keyPrefix + queueName + activeSuffix }
func delayedKey(queueName string) string   { return keyPrefix + queueName + delayedSuffix }
func completedKey(queueName string) string { return keyPrefix + queueName + completedSuffix }
func failedKey(queueName string) string    { return keyPrefix + queueName + failedSuffix }
func pausedKey(queueName string) string    { return keyPrefix + queueName + pausedSuffix }
