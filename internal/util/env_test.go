package util

import "testing"

func TestBoolEnv(t *testing.T) {
	const key = "TIENDABOT_TEST_BOOL"
	cases := []struct {
		name  string
		value string
		def   bool
		want  bool
	}{
		{"true literal", "true", false, true},
		{"one", "1", false, true},
		{"yes uppercase", "YES", false, true},
		{"on padded", "  on  ", false, true},
		{"false literal", "false", true, false},
		{"zero", "0", true, false},
		{"no mixed case", "No", true, false},
		{"off", "off", true, false},
		{"unset keeps true default", "", true, true},
		{"unset keeps false default", "", false, false},
		{"garbage keeps true default", "maybe", true, true},
		{"garbage keeps false default", "maybe", false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(key, tc.value)
			if got := BoolEnv(key, tc.def); got != tc.want {
				t.Errorf("BoolEnv(%q, %v) with value %q = %v, want %v", key, tc.def, tc.value, got, tc.want)
			}
		})
	}
}
