package main

import "testing"

func TestParseVersion(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"0.1", 0x000100},
		{"v0.1", 0x000100},
		{"1.2.3", 0x010203},
		{"1.2-rc1", 0x010200},
		{"2", 0x020000},
		{"", 0},
		{"abc", 0},
		{"0.999", 0},
		{"-1.0", 0},
	}
	for _, tc := range cases {
		if got := parseVersion(tc.in); got != tc.want {
			t.Errorf("parseVersion(%q): want 0x%06x, got 0x%06x", tc.in, tc.want, got)
		}
	}
}

func TestVersionToString(t *testing.T) {
	cases := []struct {
		in   int
		want string
	}{
		{0x000100, "0.1"},
		{0x010203, "1.2.3"},
		{0x020000, "2.0"},
	}
	for _, tc := range cases {
		if got := versionToString(tc.in); got != tc.want {
			t.Errorf("versionToString(0x%06x): want %q, got %q", tc.in, tc.want, got)
		}
	}
}

func TestVersionCompare(t *testing.T) {
	// Patch levels are ignored.
	if versionCompare(parseVersion("1.2.3"), parseVersion("1.2.9")) != 0 {
		t.Error("versions differing only in patch must compare equal")
	}
	if versionCompare(parseVersion("0.1"), parseVersion("0.2")) >= 0 {
		t.Error("0.1 must compare below 0.2")
	}
	if versionCompare(parseVersion("1.0"), parseVersion("0.22")) <= 0 {
		t.Error("1.0 must compare above 0.22")
	}
}
