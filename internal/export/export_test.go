package export

import (
	"context"
	"errors"
	"strings"
	"testing"

	"screenplay/api/internal/screenplay"
)

func sample() Screenplay {
	return Screenplay{
		Title:  "The Heist",
		Author: "Sam Writer",
		Scenes: []screenplay.Scene{
			{ID: "a", Elements: []screenplay.Element{
				{Type: screenplay.ElementSceneHeading, Content: "int. vault - night"},
				{Type: screenplay.ElementAction, Content: "The door swings open & alarms <blare>."},
				{Type: screenplay.ElementCharacter, Content: "mara"},
				{Type: screenplay.ElementParenthetical, Content: "(whispering)"},
				{Type: screenplay.ElementDialogue, Content: "We have exactly ninety seconds before the guards come back around."},
			}},
			{ID: "b", Elements: []screenplay.Element{
				{Type: screenplay.ElementSceneHeading, Content: "EXT. ROOFTOP - NIGHT"},
				{Type: screenplay.ElementTransition, Content: "cut to:"},
			}},
		},
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello-World"},
		{"My Script v1.2", "My-Script-v12"},
		{"Special!@#$%Chars", "SpecialChars"},
		{"", "screenplay"},
		{"Very Long Title That Exceeds Fifty Characters Limit", "Very-Long-Title-That-Exceeds-Fifty-Characters-Limi"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := sanitizeFilename(tt.input)
			if result != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input string
		want  Format
		err   bool
	}{
		{"pdf", FormatPDF, false},
		{"DOCX", FormatDOCX, false},
		{" html ", FormatHTML, false},
		{"txt", FormatText, false},
		{"", FormatPDF, false},
		{"rtf", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.input)
		if (err != nil) != tt.err {
			t.Fatalf("ParseFormat(%q) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestRenderHTML(t *testing.T) {
	html, err := RenderHTML(sample())
	if err != nil {
		t.Fatalf("RenderHTML() error = %v", err)
	}

	checks := []string{
		"<title>The Heist</title>",
		"Sam Writer",
		`<span>1. INT. VAULT - NIGHT</span>`,
		`<span>2. EXT. ROOFTOP - NIGHT</span>`,
		`<p class="character">MARA</p>`,
		`<p class="transition">CUT TO:</p>`,
		"&amp; alarms &lt;blare&gt;.",
	}
	for _, want := range checks {
		if !strings.Contains(html, want) {
			t.Errorf("expected HTML to contain %q", want)
		}
	}
	if strings.Contains(html, "<blare>") {
		t.Error("element content must be escaped")
	}
}

func TestRenderHTMLDefaultsTitle(t *testing.T) {
	html, err := RenderHTML(Screenplay{})
	if err != nil {
		t.Fatalf("RenderHTML() error = %v", err)
	}
	if !strings.Contains(html, "<title>"+screenplay.DefaultTitle+"</title>") {
		t.Error("expected default title")
	}
}

func TestRenderText(t *testing.T) {
	text := RenderText(sample())
	lines := strings.Split(text, "\n")

	if !strings.Contains(lines[0], "THE HEIST") {
		t.Errorf("expected centered title, got %q", lines[0])
	}
	if !strings.Contains(text, "\n1. INT. VAULT - NIGHT\n") {
		t.Error("expected numbered scene heading")
	}
	if !strings.Contains(text, "\n"+strings.Repeat(" ", characterIndent)+"MARA\n") {
		t.Error("expected indented character cue")
	}
	if !strings.Contains(text, "\n"+strings.Repeat(" ", parentheticalIndent)+"(whispering)\n") {
		t.Error("expected indented parenthetical")
	}
	for _, line := range lines {
		if strings.HasPrefix(line, strings.Repeat(" ", dialogueIndent)+"We") ||
			strings.HasPrefix(line, strings.Repeat(" ", dialogueIndent)+"guards") {
			if len(line) > dialogueIndent+dialogueWidth {
				t.Errorf("dialogue line too wide: %q", line)
			}
		}
	}
	if !strings.Contains(text, strings.Repeat(" ", pageWidth-len("CUT TO:"))+"CUT TO:\n") {
		t.Error("expected right-aligned transition")
	}
}

func TestWrap(t *testing.T) {
	got := wrap("one two three four", 9)
	want := []string{"one two", "three", "four"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("wrap() = %q, want %q", got, want)
	}
	if got := wrap("supercalifragilistic", 5); len(got) != 1 {
		t.Fatalf("long words must not be split: %q", got)
	}
}

type fakeArtifacts struct {
	key    string
	result *Result
}

func (f *fakeArtifacts) Put(_ context.Context, key string, result *Result) (string, error) {
	f.key = key
	f.result = result
	return "https://files.example.com/" + key, nil
}

func TestServiceExport(t *testing.T) {
	var pdfHTML string
	svc := NewService()
	svc.pdf = func(_ context.Context, html, title string) (*Result, error) {
		pdfHTML = html
		return &Result{Data: []byte("%PDF"), Filename: sanitizeFilename(title) + ".pdf", MimeType: "application/pdf"}, nil
	}
	svc.docx = func(context.Context, string, string) (*Result, error) {
		return nil, ErrDOCXDependencyMissing
	}
	ctx := context.Background()

	result, err := svc.Export(ctx, sample(), FormatPDF)
	if err != nil {
		t.Fatalf("Export(pdf) error = %v", err)
	}
	if result.Filename != "The-Heist.pdf" || !strings.Contains(pdfHTML, "INT. VAULT - NIGHT") {
		t.Fatalf("unexpected pdf result %q", result.Filename)
	}

	result, err = svc.Export(ctx, sample(), FormatText)
	if err != nil {
		t.Fatalf("Export(txt) error = %v", err)
	}
	if result.MimeType != "text/plain; charset=utf-8" || result.Filename != "The-Heist.txt" {
		t.Fatalf("unexpected text result %+v", result)
	}

	result, err = svc.Export(ctx, sample(), FormatHTML)
	if err != nil {
		t.Fatalf("Export(html) error = %v", err)
	}
	if !strings.HasPrefix(string(result.Data), "<!DOCTYPE html>") {
		t.Fatal("expected html document")
	}

	if _, err := svc.Export(ctx, sample(), FormatDOCX); !errors.Is(err, ErrDOCXDependencyMissing) {
		t.Fatalf("expected missing dependency error, got %v", err)
	}
	if _, err := svc.Export(ctx, sample(), Format("rtf")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format error, got %v", err)
	}
}

func TestServicePublish(t *testing.T) {
	result := &Result{Data: []byte("x"), Filename: "The-Heist.txt"}

	if _, err := NewService().Publish(context.Background(), "s1", result); !errors.Is(err, ErrArtifactsDisabled) {
		t.Fatalf("expected ErrArtifactsDisabled, got %v", err)
	}

	artifacts := &fakeArtifacts{}
	link, err := NewService(WithArtifacts(artifacts)).Publish(context.Background(), "s1", result)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if artifacts.key != "s1/The-Heist.txt" || link != "https://files.example.com/s1/The-Heist.txt" {
		t.Fatalf("unexpected publish: key=%q link=%q", artifacts.key, link)
	}
}

var _ Artifacts = (*MinioArtifacts)(nil)
