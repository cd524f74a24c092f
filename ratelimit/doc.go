// Package ratelimit provides in-process admission limiters.
//
// WindowLimiter keeps a log of admitted timestamps and admits a new event
// only while fewer than maxRequests of them fall inside the trailing window.
// TokenBucket is the smoother alternative backed by golang.org/x/time/rate.
//
// Both are local to one process. Nothing here is shared between instances,
// and neither limiter runs a background goroutine: stale state is pruned on
// the next call.
package ratelimit
