package heart

import (
	"net"
	"os"

	"github.com/google/uuid"
)

// LocalName is the default instance name: the first non-loopback IPv4
// address of this host, else the hostname, else a random identifier.
func LocalName() string {
	if addrs, err := net.InterfaceAddrs(); err == nil {
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok || ipnet.IP.IsLoopback() {
				continue
			}
			if ip4 := ipnet.IP.To4(); ip4 != nil {
				return ip4.String()
			}
		}
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return uuid.NewString()
}
