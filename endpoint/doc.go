// Package endpoint turns one shared, tagged, asynchronous message channel
// into higher-level endpoint abstractions: fire-and-forget Publisher,
// callback-driven Subscriber, and correlated Service calls. The transport is
// consumed through the narrow Connection interface so adapters stay
// swappable.
package endpoint
