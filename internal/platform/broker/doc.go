// Package broker implements the job queue and job record store on Redis.
//
// Queue layout for a queue named q:
//
//	q:wait               ready jobs, pushed on the left and popped on the right
//	q:active:<worker>    jobs claimed by one worker and not yet acknowledged
//	q:consumer:<worker>  lease of a live worker, renewed until it closes
//	q:job:<id>           job record JSON, expiring after the result TTL
//
// Completion events travel on the q:events pub/sub channel, see
// events.RedisEventBus.
package broker
