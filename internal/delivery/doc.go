// Package delivery watches one database location for added children. It
// backs child-added subscriptions on the REST store.
//
// # Delivery Strategies
//
//   - [SSEStrategy]: holds a server-sent event stream open on the location.
//     Lowest latency, recommended for most use cases.
//
//   - [PollingStrategy]: lists the children after the last delivered key at
//     an adaptive interval. Use when streaming is blocked by a proxy.
//
//   - [AutoStrategy]: tries the stream first and falls back to polling.
//
// # Usage
//
//	cfg := delivery.Config{APIClient: apiClient}
//	strategy := delivery.NewAutoStrategy(cfg)
//
//	strategy.Start(ctx, "users/"+id+"/messages", func(ctx context.Context, c delivery.Child) error {
//	    // Handle new child
//	    return nil
//	})
//	defer strategy.Stop()
//
// # Backoff and Retry
//
//   - Polling increases intervals from 2s to 30s max when nothing new arrives
//   - Streams reconnect with exponential backoff up to 10 attempts
//   - Jitter prevents thundering herd when multiple clients poll
//
// Every strategy tracks delivered keys, so children repeated by a reconnect
// reach the handler once.
package delivery
