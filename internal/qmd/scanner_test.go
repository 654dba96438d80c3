package qmd

import (
	"reflect"
	"testing"
)

func ids(s ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(s))
	for _, id := range s {
		out[id] = struct{}{}
	}
	return out
}

func TestScanInlines_SingleSpan(t *testing.T) {
	got := scanInlines(`Hello [world]{.comment ref="c1"}`, ids("c1"))
	want := []Inline{
		{Text: "Hello "},
		{Text: "world", CommentID: "c1"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestScanInlines_MultipleSpans(t *testing.T) {
	got := scanInlines(`[a]{.comment ref="c1"} mid [b]{.comment ref="c2"} end`, ids("c1", "c2"))
	want := []Inline{
		{Text: "a", CommentID: "c1"},
		{Text: " mid "},
		{Text: "b", CommentID: "c2"},
		{Text: " end"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestScanInlines_UnknownIDFlagged(t *testing.T) {
	got := scanInlines(`see [this]{.comment ref="ghost"}`, ids("c1"))
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	mark := got[1]
	if mark.CommentID != "ghost" || !mark.CommentMissing {
		t.Errorf("dangling reference must be flagged, got %+v", mark)
	}
}

func TestScanInlines_IncompleteMarkerIsLiteral(t *testing.T) {
	cases := []string{
		"plain [bracketed] text",
		`[text]{.comment ref="unterminated`,
		`[text]{.other ref="c1"}`,
		`[text]{.comment ref=""}`,
		"[no close",
	}
	for _, in := range cases {
		got := scanInlines(in, ids("c1"))
		if len(got) != 1 || got[0].CommentID != "" || got[0].Text != in {
			t.Errorf("%q: want single literal inline, got %+v", in, got)
		}
	}
}

func TestScanInlines_FirstMatchWins(t *testing.T) {
	// The inner bracket pair belongs to the first span; no nesting.
	got := scanInlines(`[outer]{.comment ref="c1"}[inner]{.comment ref="c2"}`, ids("c1", "c2"))
	want := []Inline{
		{Text: "outer", CommentID: "c1"},
		{Text: "inner", CommentID: "c2"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestScanInlines_Image(t *testing.T) {
	got := scanInlines("before ![a plot](./img.png) after", nil)
	want := []Inline{
		{Text: "before "},
		{Image: &Image{Src: "./img.png", Alt: "a plot"}},
		{Text: " after"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestScanInlines_BangWithoutImageIsLiteral(t *testing.T) {
	got := scanInlines("look! [not an image]", nil)
	if len(got) != 1 || got[0].Text != "look! [not an image]" {
		t.Errorf("got %+v", got)
	}
}

func TestScanInlines_Empty(t *testing.T) {
	if got := scanInlines("", nil); got != nil {
		t.Errorf("empty text should yield no inlines, got %+v", got)
	}
}

func TestFlattenText(t *testing.T) {
	cases := map[string]string{
		"plain":                              "plain",
		"with **bold** and `code`":           "with bold and code",
		`note [term]{.comment ref="c9"} end`: "note term end",
		"see ![chart](x.png) here":           "see chart here",
	}
	for in, want := range cases {
		if got := flattenText(in); got != want {
			t.Errorf("flattenText(%q) = %q, want %q", in, got, want)
		}
	}
}
