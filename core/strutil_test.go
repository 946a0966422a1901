package core

import "testing"

func TestNumberFormatting(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{itoa(0), "0"},
		{itoa(-4), "-4"},
		{itoa(1200000), "1200000"},
		{utoa(0xFFFFFFFF), "4294967295"},
		{hex32(0x9F), "0x0000009f"},
		{hex32(0xDEADBEEF), "0xdeadbeef"},
		{hex8(0x0A), "0x0a"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}
