package safety

import "testing"

func Test_Filter_IsAllowed_Cases(t *testing.T) {
	tests := []struct {
		name      string
		allowlist []string
		denylist  []string
		service   string
		want      bool
	}{
		{name: "empty lists allow everything", service: "camlink", want: true},
		{name: "in allowlist", allowlist: []string{"srt-streamer", "ap"}, service: "ap", want: true},
		{name: "not in allowlist", allowlist: []string{"srt-streamer"}, service: "camlink", want: false},
		{name: "in denylist", denylist: []string{"network-watcher"}, service: "network-watcher", want: false},
		{name: "denylist wins", allowlist: []string{"*"}, denylist: []string{"camlink"}, service: "camlink", want: false},
		{name: "glob allow", allowlist: []string{"srt-*"}, service: "srt-streamer", want: true},
		{name: "glob deny", denylist: []string{"*-watcher"}, service: "network-watcher", want: false},
		{name: "malformed pattern never matches", denylist: []string{"[bad"}, service: "ap", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFilter(tt.allowlist, tt.denylist)
			if got := f.IsAllowed(tt.service); got != tt.want {
				t.Errorf("IsAllowed(%q) = %v, want %v", tt.service, got, tt.want)
			}
		})
	}
}

func Test_Filter_NilAllowsAll(t *testing.T) {
	var f *Filter
	if !f.IsAllowed("anything") {
		t.Error("nil Filter should allow everything")
	}
}

func Test_Filter_Unmatched_Cases(t *testing.T) {
	known := []string{"network-watcher", "srt-streamer", "camlink", "ap"}

	tests := []struct {
		name      string
		allowlist []string
		denylist  []string
		want      []string
	}{
		{name: "empty lists", want: nil},
		{name: "exact names", allowlist: []string{"srt-streamer", "ap"}, denylist: []string{"camlink"}, want: nil},
		{name: "glob covering a service", allowlist: []string{"srt-*"}, want: nil},
		{name: "unit suffix typo", allowlist: []string{"srt-streamer.service"}, want: []string{"srt-streamer.service"}},
		{name: "unknown denylist entry", denylist: []string{"camlnk", "ap"}, want: []string{"camlnk"}},
		{name: "malformed pattern", allowlist: []string{"[bad"}, want: []string{"[bad"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewFilter(tt.allowlist, tt.denylist).Unmatched(known)
			if len(got) != len(tt.want) {
				t.Fatalf("Unmatched() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("Unmatched()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}

	var nilFilter *Filter
	if got := nilFilter.Unmatched(known); got != nil {
		t.Errorf("nil Filter Unmatched() = %v, want nil", got)
	}
}
