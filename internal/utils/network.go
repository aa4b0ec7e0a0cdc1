package utils

import (
	"fmt"
	"net"
	"time"
)

// DetectLocalIP returns the first non-loopback IPv4 address of this host.
func DetectLocalIP() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}
	for _, a := range addrs {
		if ipnet, ok := a.(*net.IPNet); ok && !ipnet.IP.IsLoopback() && ipnet.IP.To4() != nil {
			return ipnet.IP.String(), nil
		}
	}
	return "", fmt.Errorf("no local IPv4 address found")
}

const probeTimeout = 300 * time.Millisecond

// Probe reports whether something accepts TCP connections on ip:port.
func Probe(ip string, port int) bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(ip, fmt.Sprint(port)), probeTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
