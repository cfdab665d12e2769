package util

import "testing"

func TestParseBytes(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"200k", 200000, false},
		{"1M", 1000000, false},
		{"2G", 2000000000, false},
		{"100", 100, false},
		{"0", 0, false},
		{"100x", 0, true},
		{"100kB", 0, true},
		{"k", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseBytes(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseBytes(%q): error = %v, wantErr = %v", tt.input, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("ParseBytes(%q): got %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestClampInt(t *testing.T) {
	tests := []struct {
		input   string
		lo, hi  int
		want    int
		wantErr bool
	}{
		{"5", 0, 60, 5, false},
		{"-3", 0, 60, 0, false},
		{"120", 0, 60, 60, false},
		{"abc", 0, 60, 0, true},
	}

	for _, tt := range tests {
		got, err := ClampInt(tt.input, tt.lo, tt.hi)
		if (err != nil) != tt.wantErr {
			t.Errorf("ClampInt(%q): error = %v, wantErr = %v", tt.input, err, tt.wantErr)
			continue
		}
		if err == nil && got != tt.want {
			t.Errorf("ClampInt(%q): got %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestStripQuotes(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{`"hello"`, "hello"},
		{`'hello'`, "hello"},
		{`"hello'`, `"hello'`},
		{`hello`, "hello"},
		{`"`, `"`},
	}

	for _, tt := range tests {
		if got := StripQuotes(tt.input); got != tt.want {
			t.Errorf("StripQuotes(%q): got %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestFirstWord(t *testing.T) {
	word, rest := FirstWord("  service [234] /sbin/myd")
	if word != "service" {
		t.Errorf("expected word 'service', got %q", word)
	}
	if rest != "[234] /sbin/myd" {
		t.Errorf("expected rest '[234] /sbin/myd', got %q", rest)
	}

	word, rest = FirstWord("reboot")
	if word != "reboot" || rest != "" {
		t.Errorf("expected ('reboot', ''), got (%q, %q)", word, rest)
	}
}
