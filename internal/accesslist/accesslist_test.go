package accesslist

import "testing"

func TestClassifyIPExact(t *testing.T) {
	l := New(Seed{
		AllowIPs: []string{"10.0.0.1"},
		DenyIPs:  []string{"203.0.113.7"},
	})

	if got := l.ClassifyIP("10.0.0.1"); got != Allow {
		t.Fatalf("allow-listed IP = %v, want Allow", got)
	}
	if got := l.ClassifyIP("203.0.113.7"); got != Deny {
		t.Fatalf("deny-listed IP = %v, want Deny", got)
	}
	if got := l.ClassifyIP("192.0.2.1"); got != Proceed {
		t.Fatalf("unlisted IP = %v, want Proceed", got)
	}
}

func TestClassifyIPCIDR(t *testing.T) {
	l := New(Seed{
		AllowIPs: []string{"10.0.0.0/8"},
		DenyIPs:  []string{"203.0.113.0/24"},
	})

	if got := l.ClassifyIP("10.200.1.2"); got != Allow {
		t.Fatalf("in allow range = %v, want Allow", got)
	}
	if got := l.ClassifyIP("203.0.113.200"); got != Deny {
		t.Fatalf("in deny range = %v, want Deny", got)
	}
	if got := l.ClassifyIP("11.0.0.1"); got != Proceed {
		t.Fatalf("outside ranges = %v, want Proceed", got)
	}
}

func TestDenyWinsOverAllow(t *testing.T) {
	l := New(Seed{
		AllowIPs: []string{"10.0.0.0/8"},
		DenyIPs:  []string{"10.5.5.5"},
	})
	if got := l.ClassifyIP("10.5.5.5"); got != Deny {
		t.Fatalf("deny inside trusted range = %v, want Deny", got)
	}
}

func TestClassifyIPv6(t *testing.T) {
	l := New(Seed{
		DenyIPs: []string{"2001:db8::/32", "2001:db9::1"},
	})
	if got := l.ClassifyIP("2001:db8:1234::9"); got != Deny {
		t.Fatalf("in v6 deny range = %v, want Deny", got)
	}
	if got := l.ClassifyIP("2001:db9::1"); got != Deny {
		t.Fatalf("exact v6 deny = %v, want Deny", got)
	}
	if got := l.ClassifyIP("2001:dba::1"); got != Proceed {
		t.Fatalf("unlisted v6 = %v, want Proceed", got)
	}
}

func TestClassifyIPUnparseableProceeds(t *testing.T) {
	l := New(Seed{DenyIPs: []string{"203.0.113.7"}})
	if got := l.ClassifyIP("not-an-ip"); got != Proceed {
		t.Fatalf("garbage identifier = %v, want Proceed", got)
	}
}

func TestMalformedSeedEntriesAreSkipped(t *testing.T) {
	l := New(Seed{
		DenyIPs: []string{"bogus", "300.1.1.1", "10.0.0.0/99", "203.0.113.7"},
	})
	if got := l.ClassifyIP("203.0.113.7"); got != Deny {
		t.Fatalf("valid entry lost among malformed ones: %v", got)
	}
}

func TestClassifyUser(t *testing.T) {
	l := New(Seed{
		AllowUsers: []string{"Monitor@Example.com"},
		DenyUsers:  []string{"attacker@example.com"},
	})

	if got := l.ClassifyUser("monitor@example.com"); got != Allow {
		t.Fatalf("allow-listed user = %v, want Allow", got)
	}
	if got := l.ClassifyUser("ATTACKER@example.com"); got != Deny {
		t.Fatalf("deny-listed user (case) = %v, want Deny", got)
	}
	if got := l.ClassifyUser("someone@example.com"); got != Proceed {
		t.Fatalf("unlisted user = %v, want Proceed", got)
	}
}

func TestReplaceSwapsRules(t *testing.T) {
	l := New(Seed{DenyIPs: []string{"203.0.113.7"}})
	if got := l.ClassifyIP("203.0.113.7"); got != Deny {
		t.Fatalf("pre-replace = %v, want Deny", got)
	}

	l.Replace(Seed{AllowIPs: []string{"203.0.113.7"}})
	if got := l.ClassifyIP("203.0.113.7"); got != Allow {
		t.Fatalf("post-replace = %v, want Allow", got)
	}
}

func TestEmptyListProceeds(t *testing.T) {
	l := New(Seed{})
	if got := l.ClassifyIP("203.0.113.7"); got != Proceed {
		t.Fatalf("empty list IP = %v, want Proceed", got)
	}
	if got := l.ClassifyUser("user@example.com"); got != Proceed {
		t.Fatalf("empty list user = %v, want Proceed", got)
	}
}
