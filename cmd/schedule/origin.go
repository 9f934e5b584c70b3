package main

import (
	"net"
	"time"

	"github.com/pion/stun"
)

// originUnknown marks a host whose address could not be determined; the
// meeting still works, the origin is informational.
const originUnknown = "unknown"

// detectHostOrigin asks a STUN server for the address the host appears as
// from outside, falling back to the first private interface address.
func detectHostOrigin(stunServer string) string {
	if addr := stunReflexiveAddress(stunServer); addr != "" {
		return addr
	}
	if addr := privateInterfaceAddress(); addr != "" {
		return addr
	}
	return originUnknown
}

func stunReflexiveAddress(server string) string {
	client, err := stun.Dial("udp4", server)
	if err != nil {
		return ""
	}
	defer client.Close()

	client.SetRTO(2 * time.Second)

	var addr string
	msg := stun.MustBuild(stun.TransactionID, stun.BindingRequest)
	err = client.Do(msg, func(res stun.Event) {
		if res.Error != nil {
			return
		}
		var xorAddr stun.XORMappedAddress
		if err := xorAddr.GetFrom(res.Message); err != nil {
			return
		}
		addr = xorAddr.IP.String()
	})
	if err != nil {
		return ""
	}
	return addr
}

func privateInterfaceAddress() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return ""
}
