package tool

import (
	"fmt"
	"net"
	"sort"
)

// usableInterface reports whether iface is up and reachable from other hosts.
func usableInterface(iface net.Interface) bool {
	if iface.Flags&net.FlagUp == 0 {
		return false
	}
	if iface.Flags&net.FlagLoopback != 0 {
		return false
	}
	return iface.Flags&net.FlagPointToPoint == 0 // utun / tun / vpn
}

// LocalIPv4Addresses returns the sorted non-loopback IPv4 addresses of usable interfaces.
func LocalIPv4Addresses() []string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}
	seen := make(map[string]struct{})
	for _, iface := range ifaces {
		if !usableInterface(iface) {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok || ipnet.IP.IsLoopback() {
				continue
			}
			if v4 := ipnet.IP.To4(); v4 != nil {
				seen[v4.String()] = struct{}{}
			}
		}
	}
	result := make([]string, 0, len(seen))
	for ip := range seen {
		result = append(result, ip)
	}
	sort.Strings(result)
	return result
}

// ServerURLs lists the base URLs phones on the same network can use to reach the server.
func ServerURLs(protocol string, port int, ips []string) []string {
	if protocol == "" {
		protocol = "http"
	}
	urls := make([]string, 0, len(ips))
	for _, ip := range ips {
		urls = append(urls, fmt.Sprintf("%s://%s", protocol, net.JoinHostPort(ip, fmt.Sprint(port))))
	}
	return urls
}
