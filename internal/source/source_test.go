package source

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestViewSimpleFunction(t *testing.T) {
	src := "void init(void){ char *t = malloc(128); strcpy(t,\"x\"); }\n" +
		"int main(void){ init(); return 0; }\n"
	path := writeTemp(t, "leak.c", src)

	e := &Extractor{}
	view, err := e.View(path, 1)
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if view.StartLine != 1 || view.EndLine != 1 {
		t.Fatalf("got [%d,%d], want [1,1]", view.StartLine, view.EndLine)
	}
	if len(view.BodyLines) != 1 {
		t.Fatalf("got %d body lines, want 1", len(view.BodyLines))
	}
}

func TestViewMultilineFunctionAndBraceInString(t *testing.T) {
	src := `#include <stdlib.h>

Pair *mk(const char*a,const char*b){
  Pair *p=malloc(sizeof*p);
  p->k=malloc(strlen(a)+1);
  strcpy(p->k,a);
  // a comment with a brace: {
  char *weird = "contains a { brace";
  p->v=malloc(strlen(b)+1);
  strcpy(p->v,b);
  return p;
}

int main(void){
  return 0;
}
`
	path := writeTemp(t, "pair.c", src)
	e := &Extractor{}

	view, err := e.View(path, 5)
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if view.StartLine != 3 {
		t.Fatalf("start = %d, want 3", view.StartLine)
	}
	if view.EndLine != 12 {
		t.Fatalf("end = %d, want 12", view.EndLine)
	}
}

func TestViewUnresolvedOnMissingFile(t *testing.T) {
	e := &Extractor{}
	if _, err := e.View("/no/such/file.c", 5); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestViewFallsBackToSearchRoot(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "src")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	src := "void f(void){ return; }\n"
	if err := os.WriteFile(filepath.Join(sub, "util.c"), []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}

	e := &Extractor{SearchRoots: []string{dir}}
	view, err := e.View("/build/out/util.c", 1)
	if err != nil {
		t.Fatalf("View: %v", err)
	}
	if view.StartLine != 1 {
		t.Fatalf("start = %d, want 1", view.StartLine)
	}
}
