// relay-probe — a diagnostic tool built with the nostrmux SDK.
//
// Connects to the given relays and prints every connection state
// transition, notice, auth challenge, and terminal failure until
// interrupted. Useful for checking relay health and watching the
// reconnect behavior against a flaky endpoint.
//
// Usage:
//
//	go run ./cmd/relay-probe wss://relay.damus.io wss://nos.lol
package main

import (
	"os"
	"os/signal"

	"github.com/yanun0323/logs"

	nostrmux "github.com/nostrmux/go-sdk"
)

func main() {
	urls := os.Args[1:]
	if len(urls) == 0 {
		logs.Info("usage: relay-probe <relay-url> [relay-url...]")
		os.Exit(1)
	}

	client, err := nostrmux.NewClient(nostrmux.Config{Retry: 3}, nostrmux.LogErrors())
	if err != nil {
		logs.Errorf("create client: %v", err)
		os.Exit(1)
	}
	defer client.Dispose()

	states, stopStates := client.ConnectionStates()
	defer stopStates()
	msgs, stopMsgs := client.AllMessages()
	defer stopMsgs()
	relayErrs, stopErrs := client.AllErrors()
	defer stopErrs()

	configs := make([]nostrmux.RelayConfig, len(urls))
	for i, u := range urls {
		configs[i] = nostrmux.RelayConfig{URL: u, Read: true}
	}
	if err := client.SwitchRelays(configs); err != nil {
		logs.Errorf("switch relays: %v", err)
		os.Exit(1)
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt)

	for {
		select {
		case pkt := <-states:
			logs.Infof("%s -> %s", pkt.From, pkt.State)
		case pkt := <-msgs:
			switch pkt.Message.Type {
			case "NOTICE":
				logs.Infof("%s notice: %s", pkt.From, pkt.Message.Notice)
			case "AUTH":
				logs.Infof("%s wants auth, challenge %s", pkt.From, pkt.Message.Challenge)
			case "CLOSED":
				logs.Infof("%s closed %s: %s", pkt.From, pkt.Message.SubID, pkt.Message.Notice)
			}
		case pkt := <-relayErrs:
			logs.Errorf("%s unreachable: %v", pkt.From, pkt.Reason)
		case <-done:
			return
		}
	}
}
