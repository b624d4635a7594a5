// Package nostrmux provides a Go SDK for multiplexing Nostr subscriptions
// and event publication across a dynamic pool of relays.
//
// The SDK abstracts per-relay WebSocket lifecycles (with bounded automatic
// reconnection), REQ/CLOSE bookkeeping, and OK collection, exposing three
// core operations:
//
//   - Subscribe: bind a filter source to the pool and receive events
//   - Send: sign and publish an event to every writable relay
//   - SwitchRelays/AddRelay/RemoveRelay: reshape the pool while
//     subscriptions stay live
//
// Basic usage:
//
//	client, err := nostrmux.NewClient(nostrmux.Config{}, nostrmux.LogErrors())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Dispose()
//
//	if err := client.SwitchRelays([]nostrmux.RelayConfig{
//	    {URL: "wss://relay.example.com"},
//	}); err != nil {
//	    log.Fatal(err)
//	}
//
//	req := nostrmux.NewBackwardReq("timeline")
//	events, stop, err := client.Subscribe(req)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer stop()
//
//	req.Emit([]nostrmux.Filter{{Kinds: []int{1}, Limit: 10}})
//	req.Over()
//	for pkt := range events {
//	    fmt.Println(pkt.Event.Content)
//	}
package nostrmux
