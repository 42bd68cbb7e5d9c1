package urlvalidation

import (
	"net"
	"testing"
)

func TestValidateRejectsReservedTargets(t *testing.T) {
	tests := []struct {
		name string
		url  string
	}{
		{"localhost hostname", "http://localhost/hooks/repair"},
		{"loopback ip", "http://127.0.0.1/hooks/repair"},
		{"rfc1918 ten", "http://10.0.0.5/hooks"},
		{"rfc1918 one-seven-two", "http://172.16.4.1/hooks"},
		{"rfc1918 one-nine-two", "http://192.168.1.20/hooks"},
		{"link local", "http://169.254.9.9/hooks"},
		{"carrier nat", "http://100.64.0.9/hooks"},
		{"ipv6 loopback", "http://[::1]/hooks"},
		{"ftp scheme", "ftp://parts.example.com/manuals"},
		{"file scheme", "file:///etc/passwd"},
		{"bare path", "parts.example.com/hooks"},
		{"missing host", "http:///hooks"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Validate(tt.url); err == nil {
				t.Errorf("Validate(%q) accepted a target it should refuse", tt.url)
			}
		})
	}
}

func TestValidateAcceptsPublicTargets(t *testing.T) {
	for _, u := range []string{
		"https://shop.example.com/hooks/repair",
		"http://parts.example.com/hooks",
	} {
		if err := Validate(u); err != nil {
			t.Errorf("Validate(%q) = %v, want nil", u, err)
		}
	}
}

func TestAllowPrivateIPsOption(t *testing.T) {
	// httptest servers live on loopback; the escape hatch must admit them.
	if err := Validate("http://127.0.0.1:8080/hooks", AllowPrivateIPs()); err != nil {
		t.Errorf("Validate with AllowPrivateIPs = %v, want nil", err)
	}
}

func TestIsReserved(t *testing.T) {
	tests := []struct {
		ip       string
		reserved bool
	}{
		{"8.8.8.8", false},
		{"93.184.216.34", false},
		{"10.255.255.255", true},
		{"172.15.0.1", false},
		{"172.16.0.1", true},
		{"172.31.255.255", true},
		{"172.32.0.0", false},
		{"192.168.0.1", true},
		{"127.0.0.1", true},
		{"0.0.0.0", true},
		{"224.0.0.1", true},
		{"240.0.0.1", true},
		{"255.255.255.255", true},
	}
	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			ip := net.ParseIP(tt.ip)
			if ip == nil {
				t.Fatalf("bad test address %q", tt.ip)
			}
			if got := isReserved(ip); got != tt.reserved {
				t.Errorf("isReserved(%s) = %v, want %v", tt.ip, got, tt.reserved)
			}
		})
	}
}
