// Package privacy holds helpers for keeping personal data out of logs.
package privacy

import "net/netip"

// AnonymizeIP truncates an address to its network prefix (/24 for IPv4, /48 for IPv6)
// so log lines stay correlatable without recording the full client address.
// Unparseable input yields "invalid".
func AnonymizeIP(ip string) string {
	if ip == "" {
		return ""
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "invalid"
	}
	bits := 48
	if addr.Is4() || addr.Is4In6() {
		addr = addr.Unmap()
		bits = 24
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return "invalid"
	}
	return prefix.String()
}
