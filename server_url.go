package main

import (
	"fmt"
	"net"
	"strings"
)

// listenerURL returns a human-friendly WebSocket URL for the configured
// listener address, normalised so the startup log always shows a reachable
// host:port pair.
func listenerURL(address string) string {
	return fmt.Sprintf("ws://%s", normaliseHostPort(address))
}

func normaliseHostPort(address string) string {
	trimmed := strings.TrimSpace(address)
	if trimmed == "" {
		return "localhost"
	}
	host, port, err := net.SplitHostPort(trimmed)
	if err != nil {
		if strings.HasPrefix(trimmed, ":") {
			return "localhost" + trimmed
		}
		return trimmed
	}
	host = strings.TrimSpace(host)
	switch host {
	case "", "0.0.0.0", "::", "[::]":
		host = "localhost"
	}
	return net.JoinHostPort(host, port)
}
