// Package events carries job status events from workers to whoever is
// waiting on them.
//
// Workers emit a JobEvent when a job completes or fails. Handlers registered
// on the emitter see every event; producers subscribe to a single job id and
// receive only that job's events. InMemoryEventEmitter serves a single
// process, RedisEventBus spans processes over a Redis pub/sub channel.
package events
