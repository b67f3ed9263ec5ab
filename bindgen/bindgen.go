// Package bindgen turns parsed C header declarations into Go FFI binding
// declarations. One call to Generate runs the whole pipeline: parse, build
// the canonical type graph, resolve names, filter, emit.
package bindgen

import (
	"fmt"
	"io"
	"os"

	"gobindgen/parser"
)

// Options configures one generation run.
type Options struct {
	// MatchPat selects which source files contribute declarations. A
	// declaration is kept when its file path contains any pattern; an
	// empty list keeps everything.
	MatchPat []string

	// Builtins keeps compiler-internal declarations that are suppressed
	// by default.
	Builtins bool

	// Links are the library targets attached to every emitted function
	// and variable.
	Links []Link

	// EmitAST dumps the raw declaration stream to stderr before the
	// canonical graph is built.
	EmitAST bool

	// FailOnUnknownType makes an unclassifiable raw type fatal instead of
	// degrading it to an opaque placeholder.
	FailOnUnknownType bool

	// OverrideEnumTy forces every enum's underlying kind, replacing
	// per-enum inference.
	OverrideEnumTy *IKind

	// ClangArgs holds the input headers and the subset of compiler flags
	// the parser honors (-I include dirs); everything else passes through
	// untouched.
	ClangArgs []string
}

func DefaultOptions() Options {
	return Options{}
}

// Logger receives diagnostics during generation. Fatal conditions are
// reported through Error before Generate returns the error; degradations go
// through Warn.
type Logger interface {
	Error(msg string)
	Warn(msg string)
}

type dummyLogger struct{}

func (dummyLogger) Error(string) {}
func (dummyLogger) Warn(string)  {}

// ParseError reports that the C front end could not produce a declaration
// stream. Generation stops before any binding is built.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return "parsing headers: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }

// UnknownTypeError reports a raw type the registry could not classify, in
// strict mode only.
type UnknownTypeError struct {
	Spelling string
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown type %q", e.Spelling)
}

// ParseIKind maps an override spelling to an integer kind.
func ParseIKind(s string) (IKind, bool) {
	switch s {
	case "uchar":
		return IUChar, true
	case "schar":
		return ISChar, true
	case "ushort":
		return IUShort, true
	case "sshort":
		return IShort, true
	case "uint":
		return IUInt, true
	case "sint":
		return IInt, true
	case "ulong":
		return IULong, true
	case "slong":
		return ILong, true
	case "ulonglong":
		return IULongLong, true
	case "slonglong":
		return ILongLong, true
	}
	return 0, false
}

// Bindings is the generated result. It is produced whole or not at all.
type Bindings struct {
	decls []Decl
}

// Generate runs the pipeline over opts.ClangArgs and returns the finished
// bindings. A nil logger discards diagnostics.
func Generate(opts Options, logger Logger) (*Bindings, error) {
	if logger == nil {
		logger = dummyLogger{}
	}

	decls, err := parser.Parse(opts.ClangArgs)
	if err != nil {
		perr := &ParseError{Err: err}
		logger.Error(perr.Error())
		return nil, perr
	}

	if opts.EmitAST {
		dumpDecls(os.Stderr, decls)
	}

	reg := newRegistry(&opts, logger)
	if err := reg.registerAll(decls); err != nil {
		logger.Error(err.Error())
		return nil, err
	}

	assignNames(reg.order, logger.Warn)
	selected := selectGlobals(reg.order, opts.MatchPat, opts.Builtins)

	return &Bindings{decls: emit(selected, opts.Links, logger)}, nil
}

// IntoDeclarations hands over the declaration list and empties the receiver.
func (b *Bindings) IntoDeclarations() []Decl {
	d := b.decls
	b.decls = nil
	return d
}

// ToText renders the bindings as a single Go source file.
func (b *Bindings) ToText() string {
	return renderText(b.decls)
}

func (b *Bindings) Write(w io.Writer) error {
	if _, err := io.WriteString(w, b.ToText()); err != nil {
		return fmt.Errorf("writing bindings: %w", err)
	}
	return nil
}

func dumpDecls(w io.Writer, decls []parser.Decl) {
	for i := range decls {
		d := &decls[i]
		fmt.Fprintf(w, "%s:%d: %s", d.Loc.File, d.Loc.Line, d.ID)
		if !d.Definition && (d.Kind == parser.DeclStruct ||
			d.Kind == parser.DeclUnion || d.Kind == parser.DeclEnum) {
			fmt.Fprintf(w, " (forward)")
		}
		fmt.Fprintln(w)
	}
}
