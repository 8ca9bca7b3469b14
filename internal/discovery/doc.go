// Package discovery orchestrates OIC resource discovery across a
// short-range Bluetooth LE medium and an IP multicast medium.
//
// A session runs on one worker goroutine through these phases:
//
//  1. Scanning: a time-boxed scan for hosts advertising the OIC GATT
//     service. Skipped when a whitelist is supplied.
//  2. ShortRangeDiscovery: each host is queried in turn. The worker waits
//     up to the per-host timeout, or for the host's first resource plus a
//     short grace period, whichever comes first.
//  3. MulticastDiscovery: one multicast query, then a fixed wait.
//  4. Done, or Cancelled when Session.Cancel is called or the parent
//     context ends.
//
// Transports deliver resources on their own goroutines into a
// ResultAggregator. Every resource is kept, in arrival order, including
// repeated announcements of the same host and path.
//
// # Usage Example
//
//	coord := discovery.NewCoordinator(router,
//	    discovery.WithScanAdapter(adapter),
//	    discovery.WithCacheRefresher(adapter),
//	)
//
//	resources, err := coord.Discover(ctx, discovery.DefaultOptions())
//	if errors.Is(err, discovery.ErrNoResources) {
//	    fmt.Println("Nothing found")
//	}
//
// Long-running callers use Start with a Listener instead. A Listener that
// also implements ProgressListener is notified of every phase change.
//
// # Failure Model
//
// Scan and transport errors never end a session. They are logged and the
// affected phase contributes nothing. The only outcome reported to the
// listener is whether any resources were found: OnCompleted with the
// resources, or OnFailed.
package discovery
