// Package users maintains the Postgres mirror of identity-provider
// accounts. The webhook handler in pkg/webhooks feeds it; the admin API
// reads from it. All writes are idempotent so replayed or reordered
// webhook deliveries converge on the same state.
package users
