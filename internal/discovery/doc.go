// Package discovery finds Jeedom boxes on the local network.
//
// Several independent strategies look for candidate hosts: a name resolution
// strategy (forward lookups plus a PTR sweep), mDNS/DNS-SD service browsing,
// an SSDP broadcast probe and an ICMP ping sweep. Each strategy runs inside a
// Worker which verifies its candidates by fetching their front page and
// looking for the Jeedom title marker. Verified hosts are merged by URL in a
// Store, and a Coordinator owns the workers of a search session.
//
// # Search Session
//
//	c := discovery.NewCoordinator()
//	opts := discovery.SearchOptions{DNS: true, ServiceBrowse: true, BroadcastProbe: true}
//	if _, err := c.Start(ctx, discovery.Options{Strategies: opts.Strategies()}); err != nil {
//	    return err
//	}
//	for {
//	    n, err := c.Next(ctx)
//	    if err != nil {
//	        break
//	    }
//	    if n.Kind == discovery.NotifySearchCompleted {
//	        fmt.Println("found:", n.Found)
//	        break
//	    }
//	}
//	for _, h := range c.Results() {
//	    fmt.Println(h.Name, h.URL)
//	}
//
// # Verification
//
// A candidate is verified when its page body contains "<title>Jeedom</title>"
// in any letter case. Redirects are followed by the worker itself, up to
// Verifier.MaxRedirects hops, so each hop is counted against the worker's
// outstanding probes. TLS certificates are not checked.
//
// A worker finishes once its strategy has returned and no probe is
// outstanding. A quiescence watchdog, re-armed on every dispatch, times out
// whatever is still in flight after a quiet period so a stuck reply cannot
// hold the worker open.
//
// # Stopping
//
// Coordinator.Stop cancels every worker and waits for their finished events
// up to a ceiling, after which the remaining workers are abandoned and
// ErrWorkersAbandoned is returned.
//
// # Network Requirements
//
// - Service browsing needs multicast on the interface (UDP port 5353)
// - The broadcast probe uses SSDP (UDP port 1900) by default
// - The ping sweep needs an ICMP socket, unprivileged or raw
// - Sweeps cover at most the /24 around each local IPv4 address
package discovery
