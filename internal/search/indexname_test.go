package search

import "testing"

func TestIndexNameFor(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"ActivityReport", "activity_report"},
		{"File", "file"},
		{"Foo12Bar", "foo_12_bar"},
		{"foo12bar", "foo_12_bar"},
		{"HTMLParser", "html_parser"},
		{"Grant", "grant"},
		{"activityReport", "activity_report"},
		{"", ""},
	}

	for _, tc := range cases {
		if got := IndexNameFor(tc.in); got != tc.want {
			t.Errorf("IndexNameFor(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
