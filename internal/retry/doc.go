// Package retry implements retry with exponential backoff for transient
// database errors. It is wired into the initial connection attempt only:
// per-file upload failures are surfaced raw, never retried.
package retry
