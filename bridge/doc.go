// Package bridge adapts asynchronous replies into synchronous return values.
//
// A Bridge is used when the endpoint must present a blocking call contract to
// its own upstream caller (for example a server handler framework) while the
// reply actually arrives asynchronously on the shared channel. Each call
// mints a correlation id, blocks on a per-call channel, and is woken by
// exactly one of: the matching reply, context expiry, or bridge teardown.
// Teardown wakes every outstanding waiter with contracts.ErrCancelled rather
// than leaving it blocked.
package bridge
