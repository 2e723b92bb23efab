package main

import (
	"net"
	"strconv"
)

// displayAddr returns the address clients should configure as their proxy:
// the interface used for outbound traffic plus the listener's port. A
// listener bound to a specific address, or a host with no route, shows the
// listener address as is.
func displayAddr(ln net.Addr) string {
	return joinLocal(outboundIP(), ln)
}

// outboundIP picks the source address the kernel would route LAN traffic
// from. Connecting a UDP socket sends nothing.
func outboundIP() net.IP {
	conn, err := net.Dial("udp4", "10.254.254.254:1")
	if err != nil {
		return nil
	}
	defer conn.Close()
	if a, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return a.IP
	}
	return nil
}

func joinLocal(ip net.IP, ln net.Addr) string {
	tcp, ok := ln.(*net.TCPAddr)
	if !ok || ip == nil || ip.IsUnspecified() || !tcp.IP.IsUnspecified() {
		return ln.String()
	}
	return net.JoinHostPort(ip.String(), strconv.Itoa(tcp.Port))
}
