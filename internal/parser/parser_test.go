package parser

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/stemrag/internal/models"
)

func TestParseBytes_plain(t *testing.T) {
	p := NewParser()
	got, st, err := p.ParseBytes([]byte("Hello world\nLine 2"), "hours.txt")
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	if st != models.SourceTypeTxt {
		t.Errorf("type = %q", st)
	}
	if got != "Hello world\nLine 2" {
		t.Errorf("got %q", got)
	}
}

func TestParseBytes_plainInvalidUTF8(t *testing.T) {
	p := NewParser()
	got, _, err := p.ParseBytes([]byte("hello\x80world"), "notes.text")
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	if got != "hello\uFFFDworld" {
		t.Errorf("got %q", got)
	}
}

func TestParseBytes_markdown(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "headings and emphasis",
			in:   "# Tutoring\n\nWe offer *free* **drop-in** help.\n",
			want: "Tutoring We offer free drop-in help.",
		},
		{
			name: "links and images keep visible text",
			in:   "See [the schedule](https://example.edu/hours) and ![floor map](map.png).",
			want: "See the schedule and floor map.",
		},
		{
			name: "lists",
			in:   "- Calculus\n- Physics\n\n1. first\n2. second\n",
			want: "Calculus Physics first second",
		},
		{
			name: "code spans and blocks",
			in:   "Run `go test`.\n\n```\nmake all\n```\n",
			want: "Run go test. make all",
		},
		{
			name: "soft breaks and whitespace runs",
			in:   "line one\nline   two\n\n\n\nnext",
			want: "line one line two next",
		},
		{
			name: "backslash escapes removed",
			in:   "**Mon**\\*Fri 9am, 5 \\< 6",
			want: "Mon*Fri 9am, 5 < 6",
		},
		{
			name: "backslashes kept in code spans",
			in:   "Use `a\\*b` here.",
			want: "Use a\\*b here.",
		},
		{
			name: "entities decoded",
			in:   "Math &amp; Science",
			want: "Math & Science",
		},
	}
	p := NewParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, st, err := p.ParseBytes([]byte(tt.in), "doc.md")
			if err != nil {
				t.Fatalf("ParseBytes: %v", err)
			}
			if st != models.SourceTypeMarkdown {
				t.Errorf("type = %q", st)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseBytes_unsupported(t *testing.T) {
	p := NewParser()
	_, st, err := p.ParseBytes([]byte("x"), "budget.xlsx")
	if st != models.SourceTypeUnknown {
		t.Errorf("type = %q", st)
	}
	if !errors.Is(err, ErrUnsupportedFileType) {
		t.Fatalf("expected ErrUnsupportedFileType, got %v", err)
	}
	var ute *UnsupportedFileTypeError
	if !errors.As(err, &ute) || ute.Ext != ".xlsx" {
		t.Errorf("expected extension .xlsx, got %+v", ute)
	}
}

func TestParseBytes_corruptPDF(t *testing.T) {
	p := NewParser()
	_, _, err := p.ParseBytes([]byte("not really a pdf"), "broken.pdf")
	if !errors.Is(err, ErrParse) {
		t.Fatalf("expected ErrParse, got %v", err)
	}
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Source != "broken.pdf" {
		t.Errorf("expected ParseError for broken.pdf, got %v", err)
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "faq.md")
	if err := os.WriteFile(path, []byte("## FAQ\n\nOpen *daily*."), 0600); err != nil {
		t.Fatal(err)
	}
	p := NewParser()
	got, st, err := p.ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if st != models.SourceTypeMarkdown || got != "FAQ Open daily." {
		t.Errorf("got %q (%s)", got, st)
	}
}

func TestParseFile_missing(t *testing.T) {
	p := NewParser()
	_, _, err := p.ParseFile(filepath.Join(t.TempDir(), "gone.txt"))
	if !errors.Is(err, ErrParse) {
		t.Errorf("expected ErrParse for missing file, got %v", err)
	}
}

func TestParseFile_unsupportedSkipsRead(t *testing.T) {
	p := NewParser()
	_, _, err := p.ParseFile(filepath.Join(t.TempDir(), "gone.docx"))
	if !errors.Is(err, ErrUnsupportedFileType) {
		t.Errorf("expected ErrUnsupportedFileType, got %v", err)
	}
}
