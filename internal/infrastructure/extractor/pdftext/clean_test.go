package pdftext

import (
	"strings"
	"testing"
)

func TestCleanStripsPaginationNoise(t *testing.T) {
	raw := strings.Repeat("Page 1 of 3\n\nHello   world.\n42\n", 4)

	got := Clean(raw)
	if !strings.Contains(got, "Hello world.") {
		t.Fatalf("expected collapsed sentence, got %q", got)
	}
	if strings.Contains(strings.ToLower(got), "page 1 of 3") {
		t.Fatalf("expected page boilerplate removed, got %q", got)
	}
	if strings.Contains(got, "42") {
		t.Fatalf("expected lone page number removed, got %q", got)
	}
	if got != strings.TrimSpace(strings.Repeat("Hello world. ", 4)) {
		t.Fatalf("unexpected cleaned text %q", got)
	}
}

func TestCleanCases(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "collapses tabs and newlines", in: "a\t\tb\n\n c", want: "a b c"},
		{name: "case insensitive boilerplate", in: "intro PAGE 2 OF 10 outro", want: "intro outro"},
		{name: "keeps inline numbers", in: "chapter 42 begins\nhere", want: "chapter 42 begins here"},
		{name: "drops indented page number line", in: "end of page\n   7  \nnext page", want: "end of page next page"},
		{name: "other pagination conventions pass through", in: "see p. 3 for details", want: "see p. 3 for details"},
		{name: "nested boilerplate", in: "Page 1 Page 2 of 3 of 4 text", want: "text"},
		{name: "empty", in: " \n\t ", want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Clean(tc.in); got != tc.want {
				t.Fatalf("Clean(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestCleanIsIdempotent(t *testing.T) {
	inputs := []string{
		"Page 1 of 3\n\nHello   world.\n42\n",
		"Page 1 of 2 7",
		"alpha\n\n\nbeta  Page 9 of 9 gamma\n12\n",
		"chapter 42 begins",
	}
	for _, in := range inputs {
		once := Clean(in)
		if twice := Clean(once); twice != once {
			t.Fatalf("Clean not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}
