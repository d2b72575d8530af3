// Package webhooks ingests user lifecycle events from the identity
// provider and keeps the Postgres user mirror in sync.
//
// Deliveries are authenticated by signature, not by session: the Verifier
// checks an HMAC-SHA256 over "id.timestamp.body" against the endpoint
// secret, with a bounded timestamp tolerance to cut off replays. Handler
// dispatch is idempotent end to end, so the provider's at-least-once
// delivery and its retries on 500 are both safe.
package webhooks
