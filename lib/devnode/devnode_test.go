// Copyright 2026 The Deskwing Authors
// SPDX-License-Identifier: Apache-2.0

package devnode

import (
	"testing"
)

func TestParseInventory(t *testing.T) {
	output := " ABC123 : Virtual Display Adapter\n" +
		"XYZ789: Generic Monitor\n" +
		"USB\\VID_1234\\5678: Dock Station: rev 2\n" +
		": orphan line\n" +
		"\n" +
		"3 matching device(s) found.\n"

	records := ParseInventory(output)
	want := []DeviceRecord{
		{ID: "ABC123", DisplayName: "Virtual Display Adapter"},
		{ID: "XYZ789", DisplayName: "Generic Monitor"},
		{ID: "USB\\VID_1234\\5678", DisplayName: "Dock Station: rev 2"},
	}

	if len(records) != len(want) {
		t.Fatalf("ParseInventory() returned %d records, want %d: %v",
			len(records), len(want), records)
	}
	for index, record := range want {
		if records[index] != record {
			t.Errorf("records[%d] = %+v, want %+v", index, records[index], record)
		}
	}
}

func TestParseInventory_NoDevices(t *testing.T) {
	for _, output := range []string{"", "No matching devices found.\n"} {
		if records := ParseInventory(output); len(records) != 0 {
			t.Errorf("ParseInventory(%q) = %v, want empty", output, records)
		}
	}
}

func TestGlobMatcher(t *testing.T) {
	tests := []struct {
		pattern string
		id      string
		want    bool
	}{
		{`root\display`, `root\display`, true},
		{`root\display`, `ROOT\DISPLAY`, true},
		{`root\display`, `rootdisplay`, false},
		{`root\usbmmidd`, `ROOT\USBMMIDD\0000`, false},
		{`root\usbmmidd*`, `ROOT\USBMMIDD\0000`, true},
		{`*usbmmidd*`, `ROOT\USBMMIDD\0000`, true},
		{`*`, `anything at all`, true},
		{``, ``, true},
		{``, `x`, false},
		{`a*c`, `abc`, true},
		{`a*c`, `ac`, true},
		{`a*c`, `abd`, false},
		{`a*b*c`, `axxbxxc`, true},
	}
	for _, test := range tests {
		matcher := NewGlobMatcher(test.pattern)
		got := matcher.Matches(DeviceRecord{ID: test.id})
		if got != test.want {
			t.Errorf("GlobMatcher(%q).Matches(%q) = %v, want %v",
				test.pattern, test.id, got, test.want)
		}
	}
}

func TestNameMatcher(t *testing.T) {
	matcher := NewNameMatcher("Virtual Display")

	tests := []struct {
		name string
		want bool
	}{
		{"Virtual Display Adapter", true},
		{"USB virtual display #2", true},
		{"Generic Monitor", false},
		{"", false},
	}
	for _, test := range tests {
		got := matcher.Matches(DeviceRecord{DisplayName: test.name})
		if got != test.want {
			t.Errorf("NameMatcher.Matches(%q) = %v, want %v", test.name, got, test.want)
		}
	}
}

func TestMatchAny(t *testing.T) {
	record := DeviceRecord{ID: `ROOT\USBMMIDD\0000`, DisplayName: "Generic Monitor"}

	combined := MatchAny(
		NewGlobMatcher(`root\usbmmidd*`),
		NewNameMatcher("Virtual Display"),
	)
	if !combined.Matches(record) {
		t.Error("MatchAny should match via the glob member")
	}

	miss := MatchAny(
		NewGlobMatcher(`root\display`),
		NewNameMatcher("Virtual Display"),
	)
	if miss.Matches(record) {
		t.Error("MatchAny matched a record no member matches")
	}

	if MatchAny().Matches(record) {
		t.Error("MatchAny() with no members must match nothing")
	}
}
