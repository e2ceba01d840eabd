package accesslist

import (
	"net/netip"
	"strings"
	"sync/atomic"
)

// Outcome is the classification of an identifier against the override lists.
type Outcome int

const (
	// Proceed means no override applies and normal limiting runs.
	Proceed Outcome = iota
	// Allow short-circuits to an unconditional pass (trusted infrastructure).
	Allow
	// Deny short-circuits to an unconditional block without consuming any
	// window budget (known-bad actors).
	Deny
)

// Seed is the static list content loaded at startup or on reload.
// IP entries may be exact addresses or CIDR prefixes; user entries are
// matched case-insensitively on the exact identifier.
type Seed struct {
	AllowIPs   []string
	DenyIPs    []string
	AllowUsers []string
	DenyUsers  []string
}

type ruleSet struct {
	allowAddrs map[netip.Addr]struct{}
	denyAddrs  map[netip.Addr]struct{}
	allowNets  []netip.Prefix
	denyNets   []netip.Prefix
	allowUsers map[string]struct{}
	denyUsers  map[string]struct{}
}

// List is the override table consulted before any store access. Lookups are
// lock-free; Replace atomically swaps in a new rule set for hot reload.
type List struct {
	rules atomic.Pointer[ruleSet]
}

// New builds a list from the seed. Malformed IP entries are skipped rather
// than fatal so a single bad line cannot disable the whole list.
func New(seed Seed) *List {
	l := &List{}
	l.Replace(seed)
	return l
}

// Replace atomically installs the new seed. In-flight classifications finish
// against the old rules.
func (l *List) Replace(seed Seed) {
	rs := &ruleSet{
		allowAddrs: make(map[netip.Addr]struct{}),
		denyAddrs:  make(map[netip.Addr]struct{}),
		allowUsers: make(map[string]struct{}),
		denyUsers:  make(map[string]struct{}),
	}
	for _, raw := range seed.AllowIPs {
		addIP(raw, rs.allowAddrs, &rs.allowNets)
	}
	for _, raw := range seed.DenyIPs {
		addIP(raw, rs.denyAddrs, &rs.denyNets)
	}
	for _, u := range seed.AllowUsers {
		rs.allowUsers[normalizeUser(u)] = struct{}{}
	}
	for _, u := range seed.DenyUsers {
		rs.denyUsers[normalizeUser(u)] = struct{}{}
	}
	l.rules.Store(rs)
}

// ClassifyIP resolves an IP identifier against the lists. Deny wins over
// Allow so a blocklisted host inside a trusted range stays blocked.
func (l *List) ClassifyIP(identifier string) Outcome {
	rs := l.rules.Load()
	addr, err := netip.ParseAddr(strings.TrimSpace(identifier))
	if err != nil {
		return Proceed
	}
	addr = addr.Unmap()

	if _, ok := rs.denyAddrs[addr]; ok {
		return Deny
	}
	for _, p := range rs.denyNets {
		if p.Contains(addr) {
			return Deny
		}
	}
	if _, ok := rs.allowAddrs[addr]; ok {
		return Allow
	}
	for _, p := range rs.allowNets {
		if p.Contains(addr) {
			return Allow
		}
	}
	return Proceed
}

// ClassifyUser resolves a user identifier against the lists. Deny wins.
func (l *List) ClassifyUser(identifier string) Outcome {
	rs := l.rules.Load()
	user := normalizeUser(identifier)

	if _, ok := rs.denyUsers[user]; ok {
		return Deny
	}
	if _, ok := rs.allowUsers[user]; ok {
		return Allow
	}
	return Proceed
}

func addIP(raw string, addrs map[netip.Addr]struct{}, nets *[]netip.Prefix) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return
	}
	if strings.Contains(raw, "/") {
		if p, err := netip.ParsePrefix(raw); err == nil {
			*nets = append(*nets, p.Masked())
		}
		return
	}
	if a, err := netip.ParseAddr(raw); err == nil {
		addrs[a.Unmap()] = struct{}{}
	}
}

func normalizeUser(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
