package iputil

import "testing"

func TestParseIPv4(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  uint32
		ok    bool
	}{
		{"Zero address", "0.0.0.0", 0, true},
		{"Max address", "255.255.255.255", 0xFFFFFFFF, true},
		{"Typical address", "192.168.1.1", 0xC0A80101, true},
		{"Leading whitespace", "  8.8.8.8", 0x08080808, true},
		{"Three octets", "10.0.0", 0, false},
		{"Five octets", "10.0.0.0.1", 0, false},
		{"Octet out of range", "1.2.3.256", 0, false},
		{"Negative octet", "1.2.-3.4", 0, false},
		{"Not numeric", "a.b.c.d", 0, false},
		{"Empty", "", 0, false},
		{"IPv6", "::1", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseIPv4(tt.input)
			if ok != tt.ok || got != tt.want {
				t.Errorf("ParseIPv4(%q) = (%d, %v), want (%d, %v)", tt.input, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestParseCIDR(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantStart uint32
		wantEnd   uint32
		ok        bool
	}{
		{"Slash 24", "10.0.0.0/24", 0x0A000000, 0x0A0000FF, true},
		{"Slash 24 unmasked host bits", "10.0.0.7/24", 0x0A000000, 0x0A0000FF, true},
		{"Slash 32", "1.2.3.4/32", 0x01020304, 0x01020304, true},
		{"Slash 0 is whole space", "0.0.0.0/0", 0, 0xFFFFFFFF, true},
		{"Slash 0 masked", "9.9.9.9/0", 0, 0xFFFFFFFF, true},
		{"Bare address is /32", "5.6.7.8", 0x05060708, 0x05060708, true},
		{"Slash 16", "172.16.0.0/16", 0xAC100000, 0xAC10FFFF, true},
		{"Prefix too large", "10.0.0.0/33", 0, 0, false},
		{"Prefix not numeric", "10.0.0.0/x", 0, 0, false},
		{"Bad address", "10.0.0/24", 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end, ok := ParseCIDR(tt.input)
			if ok != tt.ok || start != tt.wantStart || end != tt.wantEnd {
				t.Errorf("ParseCIDR(%q) = (%d, %d, %v), want (%d, %d, %v)",
					tt.input, start, end, ok, tt.wantStart, tt.wantEnd, tt.ok)
			}
		})
	}
}

func TestUint32ToIP(t *testing.T) {
	if got := Uint32ToIP(0xC0A80101); got != "192.168.1.1" {
		t.Errorf("Uint32ToIP() = %s, want 192.168.1.1", got)
	}
	if got := Uint32ToIP(0); got != "0.0.0.0" {
		t.Errorf("Uint32ToIP() = %s, want 0.0.0.0", got)
	}
}
