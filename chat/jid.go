package chat

import "strings"

// Federated addresses have the usual localpart@domain/resource shape. The
// helpers below are used when building presence destinations and when
// rewriting room-relative sender addresses back to canonical member ids.

// LocalPart returns the part of a federated address before the '@', or the
// whole address if it has none.
func LocalPart(addr string) string {
	if i := strings.IndexByte(addr, '@'); i >= 0 {
		return addr[:i]
	}
	return addr
}

// BareAddress strips the resource from a federated address.
func BareAddress(addr string) string {
	if i := strings.IndexByte(addr, '/'); i >= 0 {
		return addr[:i]
	}
	return addr
}

// Resource returns the resource part of a federated address, or "".
func Resource(addr string) string {
	if i := strings.IndexByte(addr, '/'); i >= 0 {
		return addr[i+1:]
	}
	return ""
}

// Domain returns the domain part of a bare or full federated address.
func Domain(addr string) string {
	addr = BareAddress(addr)
	if i := strings.IndexByte(addr, '@'); i >= 0 {
		return addr[i+1:]
	}
	return addr
}
