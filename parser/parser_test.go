package parser

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func TestSplitArgs(t *testing.T) {
	headers, dirs := splitArgs([]string{
		"a.h", "-I", "/usr/inc", "-I/opt/inc", "-DFOO", "-Wall", "b.h",
	})
	if !reflect.DeepEqual(headers, []string{"a.h", "b.h"}) {
		t.Fatalf("headers = %v", headers)
	}
	if !reflect.DeepEqual(dirs, []string{"/usr/inc", "/opt/inc"}) {
		t.Fatalf("include dirs = %v", dirs)
	}
}

func TestParseIntLiteral(t *testing.T) {
	cases := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"42", 42, true},
		{"0x10", 16, true},
		{"010", 8, true},
		{"7u", 7, true},
		{"100UL", 100, true},
		{"5ll", 5, true},
		{"18446744073709551615", -1, true},
		{"", 0, false},
		{"abc", 0, false},
	}
	for _, tc := range cases {
		got, ok := parseIntLiteral(tc.in)
		if ok != tc.ok || (ok && got != tc.want) {
			t.Errorf("parseIntLiteral(%q) = %d, %v; want %d, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func writeHeader(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func declByID(decls []Decl, id string) *Decl {
	for i := range decls {
		if decls[i].ID == id {
			return &decls[i]
		}
	}
	return nil
}

func TestParseDeclarations(t *testing.T) {
	dir := t.TempDir()
	header := writeHeader(t, dir, "lib.h", `
struct widget;

struct point {
	int x;
	int y;
};

typedef struct point point_t;
typedef int (*callback)(int code);

enum state { IDLE, BUSY = 3 };

extern const char *version;

double distance(struct point *a, struct point *b);
void shutdown(void);
`)

	decls, err := Parse([]string{header})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	forward := declByID(decls, "struct widget")
	if forward == nil || forward.Definition {
		t.Fatal("forward declaration should yield a non-definition record")
	}

	point := declByID(decls, "struct point")
	if point == nil || !point.Definition {
		t.Fatal("struct point definition missing")
	}
	if len(point.Fields) != 2 || point.Fields[0].Name != "x" || point.Fields[1].Name != "y" {
		t.Fatalf("unexpected fields: %+v", point.Fields)
	}
	if point.Fields[0].Type.Kind != RefPrim || point.Fields[0].Type.Spelling != "int" {
		t.Fatalf("field x should be a primitive int, got %+v", point.Fields[0].Type)
	}

	alias := declByID(decls, "typedef point_t")
	if alias == nil || alias.Type.Kind != RefNamed || alias.Type.RefID != "struct point" {
		t.Fatalf("point_t should reference struct point, got %+v", alias)
	}

	cb := declByID(decls, "typedef callback")
	if cb == nil || cb.Type.Kind != RefPointer || cb.Type.Elem.Kind != RefFunc {
		t.Fatalf("callback should be a pointer to function, got %+v", cb)
	}
	if sig := cb.Type.Elem.Sig; len(sig.Params) != 1 || sig.Params[0].Name != "code" {
		t.Fatalf("callback signature wrong: %+v", cb.Type.Elem.Sig)
	}

	state := declByID(decls, "enum state")
	if state == nil || len(state.Items) != 2 {
		t.Fatalf("enum state missing or wrong: %+v", state)
	}
	if state.Items[0].Value != 0 || state.Items[1].Value != 3 {
		t.Fatalf("enumerator values wrong: %+v", state.Items)
	}

	version := declByID(decls, "var version")
	if version == nil || !version.Const {
		t.Fatalf("version should be a const variable, got %+v", version)
	}
	if version.Type.Kind != RefPointer {
		t.Fatalf("version should be a pointer, got %+v", version.Type)
	}

	dist := declByID(decls, "func distance")
	if dist == nil || len(dist.Sig.Params) != 2 {
		t.Fatalf("distance signature wrong: %+v", dist)
	}
	if dist.Sig.Ret.Spelling != "double" {
		t.Fatalf("distance should return double, got %+v", dist.Sig.Ret)
	}

	stop := declByID(decls, "func shutdown")
	if stop == nil || len(stop.Sig.Params) != 0 {
		t.Fatalf("(void) parameter list should be empty, got %+v", stop)
	}
}

func TestParseDeclaratorShapes(t *testing.T) {
	dir := t.TempDir()
	header := writeHeader(t, dir, "arr.h", `
typedef int *ptr_array[3];
typedef int (*array_ptr)[3];
typedef char buffer[16];
`)
	decls, err := Parse([]string{header})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	pa := declByID(decls, "typedef ptr_array")
	if pa == nil || pa.Type.Kind != RefArray || pa.Type.Elem.Kind != RefPointer {
		t.Fatalf("ptr_array should be array of pointers, got %+v", pa)
	}
	if pa.Type.Len != 3 {
		t.Fatalf("ptr_array length should be 3, got %d", pa.Type.Len)
	}

	ap := declByID(decls, "typedef array_ptr")
	if ap == nil || ap.Type.Kind != RefPointer || ap.Type.Elem.Kind != RefArray {
		t.Fatalf("array_ptr should be pointer to array, got %+v", ap)
	}

	buf := declByID(decls, "typedef buffer")
	if buf == nil || buf.Type.Kind != RefArray || buf.Type.Len != 16 {
		t.Fatalf("buffer should be a 16-element array, got %+v", buf)
	}
}

func TestParseAnonymousAggregate(t *testing.T) {
	dir := t.TempDir()
	header := writeHeader(t, dir, "anon.h", `
struct outer {
	struct {
		int a;
	} inner;
};
`)
	decls, err := Parse([]string{header})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	outer := declByID(decls, "struct outer")
	if outer == nil || len(outer.Fields) != 1 {
		t.Fatalf("struct outer wrong: %+v", outer)
	}
	f := outer.Fields[0]
	if f.Name != "inner" || f.Type.Kind != RefInline {
		t.Fatalf("inner member should carry an inline aggregate, got %+v", f)
	}
	if !strings.HasPrefix(f.Type.Inline.ID, "struct@") {
		t.Fatalf("anonymous identity should be positional, got %q", f.Type.Inline.ID)
	}
	if !strings.Contains(f.Type.Inline.ID, "anon.h:") {
		t.Fatalf("anonymous identity should name the file, got %q", f.Type.Inline.ID)
	}
}

func TestParseIncludeGuardRecursion(t *testing.T) {
	dir := t.TempDir()
	header := writeHeader(t, dir, "g.h", `#ifndef G_H
#define G_H

struct guarded { int v; };

#endif
`)
	decls, err := Parse([]string{header})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if declByID(decls, "struct guarded") == nil {
		t.Fatal("declarations inside an include guard must be visited")
	}
}

func TestParseUnresolvedInclude(t *testing.T) {
	dir := t.TempDir()
	header := writeHeader(t, dir, "top.h", "#include \"missing.h\"\n")

	if _, err := Parse([]string{header}); err == nil {
		t.Fatal("unresolved quoted include should fail")
	}
}

func TestParseSyntaxError(t *testing.T) {
	dir := t.TempDir()
	header := writeHeader(t, dir, "bad.h", "struct ( int;\n")

	if _, err := Parse([]string{header}); err == nil {
		t.Fatal("syntax errors should be fatal")
	}
}

func TestParseNoInputs(t *testing.T) {
	if _, err := Parse([]string{"-I", "/tmp"}); err == nil {
		t.Fatal("no headers should be an error")
	}
}
