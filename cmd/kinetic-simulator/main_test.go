package main

import (
	"net"
	"testing"
)

func TestAddrString(t *testing.T) {
	if got := addrString(nil); got != "-" {
		t.Errorf("addrString(nil) = %q", got)
	}
	a := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 8443}
	if got := addrString(a); got != "127.0.0.1:8443" {
		t.Errorf("addrString() = %q", got)
	}
}
