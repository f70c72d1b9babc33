package redis

// Redis key naming conventions for runstream data. All keys are prefixed
// with "runstream:" to avoid collisions. Every component derives identical
// keys from identical inputs; run IDs are globally unique by contract, so
// keys are collision-free across runs.

const keyPrefix = "runstream:"

// ── Run keys ──

// stateKey returns the key for a run state record: runstream:run:{id}
func stateKey(runID string) string { return keyPrefix + "run:" + runID }

// eventsKey returns the List key for a run's event log: runstream:events:{id}
func eventsKey(runID string) string { return keyPrefix + "events:" + runID }

// streamKey returns the pub/sub channel name for a run: runstream:stream:{id}
func streamKey(runID string) string { return keyPrefix + "stream:" + runID }

// ── Conversation keys ──

// conversationRunKey maps a conversation to its active run:
// runstream:conversation_run:{id}
func conversationRunKey(conversationID string) string {
	return keyPrefix + "conversation_run:" + conversationID
}

// lockKey returns the advisory lock key for a conversation:
// runstream:lock:{id}. Part of the keyspace contract for external
// submitters that serialize one active run per conversation with
// SET NX; nothing in this module takes the lock itself.
func lockKey(conversationID string) string { return keyPrefix + "lock:" + conversationID }

// ── Job keys ──

// jobKey returns the key for a job record: runstream:job:{queue}:{id}
func jobKey(queue, jobID string) string { return keyPrefix + "job:" + queue + ":" + jobID }

// queueKey returns the Sorted Set key for a queue: runstream:queue:{name}
func queueKey(name string) string { return keyPrefix + "queue:" + name }
