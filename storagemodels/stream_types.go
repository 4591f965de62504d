package storagemodels

import (
	"time"
)

// StreamFunc receives one envelope per delivered snapshot.
type StreamFunc func(Result)

// Subscription is the handle of an active change subscription.
type Subscription interface {
	// ID identifies the subscription in logs.
	ID() string
	// Cancel stops further deliveries. It is safe to call more than once.
	Cancel()
	// Done is closed once the subscription has stopped.
	Done() <-chan struct{}
}

// StreamOptions configures change notification polling in backends that poll
type StreamOptions struct {
	PollInterval time.Duration    // Wait between polls when idle (default: 1s)
	MaxRetries   int              // Retry attempts for transient errors (default: 3)
	RetryBackoff time.Duration    // Backoff between retries (default: 1s)
	ShardRefresh int              // Polls between shard list refreshes (default: 30)
	ErrorHandler func(error) bool // Return true to continue, false to stop
}

// StreamOption is a functional option for configuring streaming
type StreamOption func(*StreamOptions)

// DefaultStreamOptions returns default streaming options
func DefaultStreamOptions() StreamOptions {
	return StreamOptions{
		PollInterval: time.Second,
		MaxRetries:   3,
		RetryBackoff: time.Second,
		ShardRefresh: 30,
	}
}

// WithPollInterval sets the idle wait between polls
func WithPollInterval(d time.Duration) StreamOption {
	return func(opts *StreamOptions) {
		opts.PollInterval = d
	}
}

// WithMaxRetries sets the maximum retry attempts
func WithMaxRetries(retries int) StreamOption {
	return func(opts *StreamOptions) {
		opts.MaxRetries = retries
	}
}

// WithRetryBackoff sets the retry backoff duration
func WithRetryBackoff(backoff time.Duration) StreamOption {
	return func(opts *StreamOptions) {
		opts.RetryBackoff = backoff
	}
}

// WithShardRefresh sets how many polls pass between shard list refreshes
func WithShardRefresh(polls int) StreamOption {
	return func(opts *StreamOptions) {
		opts.ShardRefresh = polls
	}
}

// WithErrorHandler sets an error handler that can decide whether to continue
func WithErrorHandler(handler func(error) bool) StreamOption {
	return func(opts *StreamOptions) {
		opts.ErrorHandler = handler
	}
}
