package main

import (
	"strings"
	"testing"

	"github.com/corpusqa/corpusqa/internal/cache"
)

func TestColorizeRespectsNoColor(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	if result := colorize(colorGreen, "hello"); strings.Contains(result, "\033") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}

	noColor = false
	if result := colorize(colorGreen, "hello"); !strings.Contains(result, "\033") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestBuildSelector(t *testing.T) {
	tests := []struct {
		name        string
		fingerprint string
		prefix      string
		all         bool
		want        cache.Selector
		wantErr     bool
	}{
		{name: "fingerprint", fingerprint: "abc", want: cache.ExactKey("abc")},
		{name: "prefix", prefix: "What is", want: cache.PrefixPattern("What is")},
		{name: "all", all: true, want: cache.All()},
		{name: "none", wantErr: true},
		{name: "two selectors", fingerprint: "abc", all: true, wantErr: true},
		{name: "three selectors", fingerprint: "abc", prefix: "q", all: true, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := buildSelector(tt.fingerprint, tt.prefix, tt.all)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("buildSelector: %v", err)
			}
			if got != tt.want {
				t.Errorf("selector = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestDocKey(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/corpus/reports/q3.pdf", "raw/q3.pdf"},
		{"scan.png", "raw/scan.png"},
		{"./nested/dir/manual.pdf", "raw/manual.pdf"},
	}
	for _, tt := range tests {
		if got := docKey("raw/", tt.path); got != tt.want {
			t.Errorf("docKey(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestAskRequiresQuestion(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"ask"})
	if err := rootCmd.Execute(); err == nil {
		t.Fatal("ask without arguments should fail")
	}
}
