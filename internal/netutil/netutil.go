// SPDX-License-Identifier: MIT

// Package netutil resolves the address the appliance advertises to the LAN.
package netutil

import (
	"net"
	"os"
)

// PrimaryIPv4 returns the first global unicast IPv4 of a non-loopback, up
// interface. Falls back to 127.0.0.1 when the host has no LAN address, so
// discovery answers stay well-formed even on an isolated box.
func PrimaryIPv4() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "127.0.0.1"
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip == nil || ip.To4() == nil || !ip.IsGlobalUnicast() {
				continue
			}
			return ip.String()
		}
	}
	return "127.0.0.1"
}

// Hostname returns the OS hostname, or "unknown" when it cannot be read.
func Hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "unknown"
	}
	return h
}
