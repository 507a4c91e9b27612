// Package remote provides the authoritative data sources consumed by the
// sync orchestrator: an HTTP client, a JSON file fixture, and an offline
// stub. Every failure is an *UnavailableError; callers never distinguish
// transport errors from bad payloads, both mean "use the cache".
package remote
