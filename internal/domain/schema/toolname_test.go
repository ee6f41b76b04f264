package schema

import "testing"

func TestSanitizeToolName(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"already valid", "search_web", "search_web"},
		{"space and slash collapse", "get weather/forecast", "get_weather_forecast"},
		{"leading digit gets prefixed", "123tool", "_123tool"},
		{"drops disallowed punctuation", "weird!name?", "weirdname"},
		{"empty becomes placeholder", "", "_tool"},
		{"only disallowed chars becomes placeholder", "!!!", "_tool"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SanitizeToolName(tc.in)
			if got != tc.want {
				t.Errorf("SanitizeToolName(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestSanitizeToolName_TruncatesAndIdempotent(t *testing.T) {
	long := ""
	for i := 0; i < 100; i++ {
		long += "a"
	}
	got := SanitizeToolName(long)
	if len(got) > maxToolNameLen {
		t.Fatalf("sanitized name exceeds max length: %d", len(got))
	}
	if SanitizeToolName(got) != got {
		t.Fatalf("SanitizeToolName is not idempotent on its own output: %q -> %q", got, SanitizeToolName(got))
	}
}

func TestReversibleToolNameRoundTrip(t *testing.T) {
	cases := []string{
		"search_web",
		"get weather",
		"path/to/tool",
		"mixed case_Name-With.Dots:and-dashes",
	}
	for _, in := range cases {
		encoded := EncodeReversibleToolName(in)
		decoded := DecodeReversibleToolName(encoded)
		if decoded != in {
			t.Errorf("round trip failed for %q: encoded=%q decoded=%q", in, encoded, decoded)
		}
	}
}

func TestEncodeReversibleToolName_PrependsLeadingUnderscore(t *testing.T) {
	got := EncodeReversibleToolName("9lives")
	if got[0] != '_' {
		t.Fatalf("expected leading underscore prefix, got %q", got)
	}
}
