// Package notifications delivers push notifications for job and batch
// lifecycle events via ntfy. When no topic is configured every method
// is a silent no-op, so callers never need to guard their calls.
package notifications
