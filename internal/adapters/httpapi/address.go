package httpapi

import (
	"net"
	"net/netip"
	"strings"

	"github.com/Reddy-45/siem/internal/domain"
)

// ResolveSourceAddress picks the address an event is attributed to.
//
// Rule:
//   - With trustForwarded set and a non-empty X-Forwarded-For value, the
//     first comma-separated token, trimmed of whitespace
//   - Otherwise the transport peer address (host part of remoteAddr)
//
// Returns:
//   - domain.ErrInvalidSourceAddress (wrapped) if the chosen token is not an
//     IP address
func ResolveSourceAddress(forwardedFor, remoteAddr string, trustForwarded bool) (netip.Addr, error) {
	if trustForwarded && strings.TrimSpace(forwardedFor) != "" {
		first, _, _ := strings.Cut(forwardedFor, ",")
		return domain.ParseSourceAddress(strings.TrimSpace(first))
	}

	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	return domain.ParseSourceAddress(host)
}
