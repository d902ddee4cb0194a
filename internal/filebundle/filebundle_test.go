package filebundle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/pavelanni/plgspl/internal/config"
	"github.com/pavelanni/plgspl/internal/document"
	"github.com/pavelanni/plgspl/internal/i18n"
)

func TestMain(m *testing.M) {
	if err := i18n.Init("en"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func TestPartName(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		key      string
		qid      string
		want     string
	}{
		{"after key", "alice_q1_77_main.py", "alice_q1_77", "q1", "main.py"},
		{"after question id", "alice_q1_other.txt", "alice_q1_77", "q1", "other.txt"},
		{"dash separator", "bob_q2_5-report.md", "bob_q2_5", "q2", "report.md"},
		{"nothing after key", "bob_q2_5", "bob_q2_5", "q2", "bob_q2_5"},
		{"no match keeps name", "unrelated.txt", "bob_q2_5", "q2", "unrelated.txt"},
		{"key is prefix of longer id", "s1_q1_45_main.py", "s1_q1_4", "q1", "45_main.py"},
		{"question id is prefix of longer id", "alice_q10_x.txt", "alice_q1_77", "q1", "alice_q10_x.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PartName(tt.filename, tt.key, tt.qid); got != tt.want {
				t.Errorf("PartName(%q) = %q, want %q", tt.filename, got, tt.want)
			}
		})
	}
}

func TestCollectMatchesWholeKey(t *testing.T) {
	dir := t.TempDir()
	names := []string{"1_q1_9_a.py", "11_q1_9_b.py", "1_q1_9_notes.md", "1_q2_9_c.py", "1_q1_95_d.py"}
	b, err := Collect(dir, names, "1_q1_9", "q1")
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if diff := cmp.Diff([]string{"a.py", "notes.md"}, b.Names()); diff != "" {
		t.Errorf("names mismatch (-want +got):\n%s", diff)
	}
	p, ok := b.Path("a.py")
	if !ok || !filepath.IsAbs(p) {
		t.Errorf("Path(a.py) = %q, %v; want absolute path", p, ok)
	}
}

func TestAddLastWriteWins(t *testing.T) {
	b := New()
	b.Add("main.py", "/tmp/first/main.py")
	b.Add("main.py", "/tmp/second/main.py")
	if b.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", b.Len())
	}
	if p, _ := b.Path("main.py"); p != "/tmp/second/main.py" {
		t.Errorf("Path = %q, want the later file", p)
	}
}

func renderOne(t *testing.T, b *Bundle, part string, template bool, budget int) (*document.Document, int, error) {
	t.Helper()
	d := document.New(config.Default())
	d.AddPage()
	start := d.PageNo()
	err := b.Render(context.Background(), d, config.Default(), part, template, budget)
	return d, start, err
}

func TestRenderMissingFileReservesBudget(t *testing.T) {
	d, start, err := renderOne(t, New(), "main.py", false, 3)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got := d.PageNo() - start + 1; got != 3 {
		t.Errorf("missing file used %d pages, want 3", got)
	}
}

func TestRenderFamilies(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		return p
	}
	b := New()
	b.Add("main.py", write("main.py", "def f(x):\n\treturn x + 1\n"))
	b.Add("notes.md", write("notes.md", "# Notes\n\n*fine*\n"))
	b.Add("data.bin", write("data.bin", string([]byte{0x00, 0x01, 0x02, 0xff, 0xfe})))
	b.Add("log.xyz", write("log.xyz", "plain text log\n"))
	b.Add("fake.png", write("fake.png", "not really a png"))

	for _, part := range b.Names() {
		t.Run(part, func(t *testing.T) {
			d, start, err := renderOne(t, b, part, false, 1)
			if err != nil {
				t.Fatalf("Render(%s): %v", part, err)
			}
			if d.PageNo() != start {
				t.Errorf("%s used %d pages, want 1", part, d.PageNo()-start+1)
			}
			if err := d.Err(); err != nil {
				t.Errorf("document error after %s: %v", part, err)
			}
		})
	}
}

func TestRenderOverflow(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "long.py")
	if err := os.WriteFile(p, []byte(strings.Repeat("print('x')\n", 300)), 0o644); err != nil {
		t.Fatal(err)
	}
	b := New()
	b.Add("long.py", p)

	_, _, err := renderOne(t, b, "long.py", false, 2)
	if !errors.Is(err, document.ErrPageOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}

	_, _, err = renderOne(t, b, "long.py", true, 2)
	if err != nil {
		t.Errorf("template mode should render the placeholder only: %v", err)
	}
}
