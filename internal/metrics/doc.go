// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Inbound frames by channel and event
//   - Frames that reached no waiter or listener
//   - Subscribe/unsubscribe/auth acknowledgements by outcome
//   - Active listeners and connection attempts
//   - Journal batch sizes and failures
package metrics
