package parser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/c"
)

// Parse runs the C front end over every header named in args and returns the
// ordered raw declaration stream. Quoted #include directives are followed
// through the directories given with -I; system includes are left alone.
// Unrecognized flags are accepted and ignored so that callers can forward
// compiler argument lists opaquely.
func Parse(args []string) ([]Decl, error) {
	headers, includeDirs := splitArgs(args)
	if len(headers) == 0 {
		return nil, fmt.Errorf("no input headers")
	}

	p := &pass{
		includeDirs: includeDirs,
		visited:     make(map[string]bool),
	}
	for _, h := range headers {
		if err := p.parseFile(h); err != nil {
			return nil, err
		}
	}

	return p.decls, nil
}

// splitArgs separates header paths from -I include directories. Every other
// flag is forwarded opaquely, which for this front end means dropped.
func splitArgs(args []string) (headers, includeDirs []string) {
	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "-I" && i+1 < len(args):
			includeDirs = append(includeDirs, args[i+1])
			i++
		case strings.HasPrefix(a, "-I"):
			includeDirs = append(includeDirs, a[2:])
		case strings.HasPrefix(a, "-"):
		default:
			headers = append(headers, a)
		}
	}
	return headers, includeDirs
}

type pass struct {
	includeDirs []string
	visited     map[string]bool
	decls       []Decl
}

func (p *pass) parseFile(path string) error {
	if p.visited[path] {
		return nil
	}
	p.visited[path] = true

	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading header: %w", err)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(c.GetLanguage())

	tree, err := parser.ParseCtx(context.Background(), nil, src)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return fmt.Errorf("%s: header contains syntax errors", path)
	}

	return p.walkItems(root, src, path)
}

// walkItems handles a run of top-level items. Preprocessor conditionals nest
// their controlled items, so this recurses into them.
func (p *pass) walkItems(node *sitter.Node, src []byte, file string) error {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		if err := p.topLevel(node.NamedChild(i), src, file); err != nil {
			return err
		}
	}
	return nil
}

func (p *pass) topLevel(node *sitter.Node, src []byte, file string) error {
	switch node.Type() {
	case "preproc_include":
		return p.handleInclude(node, src, file)
	case "preproc_ifdef", "preproc_if", "preproc_else", "preproc_elif":
		return p.walkItems(node, src, file)
	case "type_definition":
		p.handleTypedef(node, src, file)
	case "declaration":
		p.handleDeclaration(node, src, file)
	case "function_definition":
		p.handleFunctionDefinition(node, src, file)
	case "struct_specifier", "union_specifier", "enum_specifier":
		p.aggregateRef(node, src, file, false)
	}
	return nil
}

func (p *pass) handleInclude(node *sitter.Node, src []byte, file string) error {
	pathNode := node.ChildByFieldName("path")
	if pathNode == nil || pathNode.Type() != "string_literal" {
		return nil
	}
	name := strings.Trim(pathNode.Content(src), `"`)
	if resolved, ok := p.resolveInclude(name, filepath.Dir(file)); ok {
		return p.parseFile(resolved)
	}
	return fmt.Errorf("%s: cannot resolve include %q", file, name)
}

func (p *pass) resolveInclude(name, fromDir string) (string, bool) {
	candidates := append([]string{fromDir}, p.includeDirs...)
	for _, dir := range candidates {
		full := filepath.Join(dir, name)
		if _, err := os.Stat(full); err == nil {
			return full, true
		}
	}
	return "", false
}

func (p *pass) handleTypedef(node *sitter.Node, src []byte, file string) {
	typeNode := node.ChildByFieldName("type")
	if typeNode == nil {
		return
	}
	base := p.baseType(typeNode, hasConstQualifier(node, src), src, file)

	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.StartByte() == typeNode.StartByte() || !isDeclaratorNode(child.Type()) {
			continue
		}
		t, name := p.applyDeclarator(base, child, src, file)
		if name == "" {
			continue
		}
		p.decls = append(p.decls, Decl{
			Kind:       DeclTypedef,
			ID:         TypedefID(name),
			Name:       name,
			Loc:        location(node, file),
			Definition: true,
			Type:       t,
		})
	}
}

func (p *pass) handleDeclaration(node *sitter.Node, src []byte, file string) {
	typeNode := node.ChildByFieldName("type")
	if typeNode == nil {
		return
	}
	isConst := hasConstQualifier(node, src)
	// Registers named aggregates (bodies and forward declarations) as a side
	// effect, so a bare "struct S {...};" needs nothing further.
	base := p.baseType(typeNode, isConst, src, file)

	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.StartByte() == typeNode.StartByte() {
			continue
		}
		if child.Type() == "init_declarator" {
			child = child.ChildByFieldName("declarator")
			if child == nil {
				continue
			}
		}
		if !isDeclaratorNode(child.Type()) {
			continue
		}
		t, name := p.applyDeclarator(base, child, src, file)
		if name == "" {
			continue
		}
		if t.Kind == RefFunc {
			p.decls = append(p.decls, Decl{
				Kind:       DeclFunc,
				ID:         FuncID(name),
				Name:       name,
				Loc:        location(node, file),
				Definition: true,
				Sig:        t.Sig,
			})
			continue
		}
		p.decls = append(p.decls, Decl{
			Kind:       DeclVar,
			ID:         VarID(name),
			Name:       name,
			Loc:        location(node, file),
			Definition: true,
			Type:       t,
			Const:      isConst,
		})
	}
}

func (p *pass) handleFunctionDefinition(node *sitter.Node, src []byte, file string) {
	typeNode := node.ChildByFieldName("type")
	declNode := node.ChildByFieldName("declarator")
	if typeNode == nil || declNode == nil {
		return
	}
	base := p.baseType(typeNode, false, src, file)
	t, name := p.applyDeclarator(base, declNode, src, file)
	if name == "" || t.Kind != RefFunc {
		return
	}
	p.decls = append(p.decls, Decl{
		Kind:       DeclFunc,
		ID:         FuncID(name),
		Name:       name,
		Loc:        location(node, file),
		Definition: true,
		Sig:        t.Sig,
	})
}

// baseType resolves a declaration's type specifier into a raw handle. Named
// aggregate specifiers are appended to the declaration stream here, so every
// "struct S" use yields at least a forward record for the registry.
func (p *pass) baseType(typeNode *sitter.Node, isConst bool, src []byte, file string) *TypeRef {
	switch typeNode.Type() {
	case "primitive_type", "sized_type_specifier":
		return &TypeRef{Kind: RefPrim, Spelling: normalizeSpaces(typeNode.Content(src)), Const: isConst}
	case "type_identifier":
		name := typeNode.Content(src)
		return &TypeRef{Kind: RefNamed, Spelling: name, RefID: TypedefID(name), Const: isConst}
	case "struct_specifier", "union_specifier", "enum_specifier":
		return p.aggregateRef(typeNode, src, file, isConst)
	default:
		return &TypeRef{Kind: RefPrim, Spelling: normalizeSpaces(typeNode.Content(src)), Const: isConst}
	}
}

// aggregateRef handles struct/union/enum specifiers appearing as a type. Named
// tags become RefNamed handles (with the definition or a forward record pushed
// onto the stream); anonymous bodies become RefInline handles carried in place.
func (p *pass) aggregateRef(node *sitter.Node, src []byte, file string, isConst bool) *TypeRef {
	var kindStr string
	var declKind DeclKind
	var idFn func(string) string
	switch node.Type() {
	case "union_specifier":
		kindStr, declKind, idFn = "union", DeclUnion, UnionID
	case "enum_specifier":
		kindStr, declKind, idFn = "enum", DeclEnum, EnumID
	default:
		kindStr, declKind, idFn = "struct", DeclStruct, StructID
	}

	nameNode := node.ChildByFieldName("name")
	body := node.ChildByFieldName("body")
	loc := location(node, file)

	if nameNode != nil {
		tag := nameNode.Content(src)
		id := idFn(tag)
		d := Decl{
			Kind: declKind,
			ID:   id,
			Name: tag,
			Loc:  loc,
		}
		if body != nil {
			d.Definition = true
			p.fillAggregate(&d, body, src, file)
		}
		p.decls = append(p.decls, d)
		return &TypeRef{Kind: RefNamed, Spelling: kindStr + " " + tag, RefID: id, Const: isConst}
	}

	if body == nil {
		return &TypeRef{Kind: RefPrim, Spelling: kindStr, Const: isConst}
	}

	d := &Decl{
		Kind:       declKind,
		ID:         anonID(kindStr, loc),
		Loc:        loc,
		Definition: true,
	}
	p.fillAggregate(d, body, src, file)
	return &TypeRef{Kind: RefInline, Spelling: kindStr, Inline: d, Const: isConst}
}

func (p *pass) fillAggregate(d *Decl, body *sitter.Node, src []byte, file string) {
	if d.Kind == DeclEnum {
		p.fillEnum(d, body, src)
		return
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		child := body.NamedChild(i)
		if child.Type() != "field_declaration" {
			continue
		}
		d.Fields = append(d.Fields, p.fieldDecls(child, src, file)...)
	}
}

func (p *pass) fieldDecls(node *sitter.Node, src []byte, file string) []FieldDecl {
	typeNode := node.ChildByFieldName("type")
	if typeNode == nil {
		return nil
	}
	base := p.baseType(typeNode, hasConstQualifier(node, src), src, file)

	bits := -1
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == "bitfield_clause" {
			if expr := child.NamedChild(0); expr != nil {
				if v, ok := evalConst(expr, src, nil); ok {
					bits = int(v)
				}
			}
		}
	}

	var fields []FieldDecl
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.StartByte() == typeNode.StartByte() || !isDeclaratorNode(child.Type()) {
			continue
		}
		t, name := p.applyDeclarator(base, child, src, file)
		fields = append(fields, FieldDecl{Name: name, Type: t, Bits: bits})
	}
	if len(fields) > 0 {
		return fields
	}

	// No declarator: a C11 anonymous member or an unnamed bit-field.
	if base.Kind == RefInline || bits >= 0 {
		return []FieldDecl{{Name: "", Type: base, Bits: bits}}
	}
	return nil
}

func (p *pass) fillEnum(d *Decl, body *sitter.Node, src []byte) {
	prior := make(map[string]int64)
	next := int64(0)
	for i := 0; i < int(body.NamedChildCount()); i++ {
		child := body.NamedChild(i)
		if child.Type() != "enumerator" {
			continue
		}
		nameNode := child.ChildByFieldName("name")
		if nameNode == nil {
			continue
		}
		name := nameNode.Content(src)
		value := next
		if valueNode := child.ChildByFieldName("value"); valueNode != nil {
			if v, ok := evalConst(valueNode, src, prior); ok {
				value = v
			}
		}
		prior[name] = value
		next = value + 1
		d.Items = append(d.Items, EnumItemDecl{Name: name, Value: value})
	}
}

// applyDeclarator unwinds a C declarator against the base type accumulated so
// far, returning the full raw type and the declared identifier (empty for
// abstract declarators).
func (p *pass) applyDeclarator(base *TypeRef, node *sitter.Node, src []byte, file string) (*TypeRef, string) {
	switch node.Type() {
	case "identifier", "field_identifier", "type_identifier":
		return base, node.Content(src)

	case "pointer_declarator", "abstract_pointer_declarator":
		t := &TypeRef{Kind: RefPointer, Elem: base, Const: hasConstQualifier(node, src)}
		if d := node.ChildByFieldName("declarator"); d != nil {
			return p.applyDeclarator(t, d, src, file)
		}
		return t, ""

	case "array_declarator", "abstract_array_declarator":
		length := -1
		if s := node.ChildByFieldName("size"); s != nil {
			if v, ok := evalConst(s, src, nil); ok {
				length = int(v)
			}
		}
		t := &TypeRef{Kind: RefArray, Elem: base, Len: length}
		if d := node.ChildByFieldName("declarator"); d != nil {
			return p.applyDeclarator(t, d, src, file)
		}
		return t, ""

	case "function_declarator", "abstract_function_declarator":
		sig := &SigDecl{Ret: base}
		p.parameters(node.ChildByFieldName("parameters"), sig, src, file)
		t := &TypeRef{Kind: RefFunc, Sig: sig}
		if d := node.ChildByFieldName("declarator"); d != nil {
			return p.applyDeclarator(t, d, src, file)
		}
		return t, ""

	case "parenthesized_declarator", "abstract_parenthesized_declarator":
		if d := node.NamedChild(0); d != nil {
			return p.applyDeclarator(base, d, src, file)
		}
		return base, ""

	case "init_declarator":
		if d := node.ChildByFieldName("declarator"); d != nil {
			return p.applyDeclarator(base, d, src, file)
		}
		return base, ""
	}
	return base, ""
}

func (p *pass) parameters(node *sitter.Node, sig *SigDecl, src []byte, file string) {
	if node == nil {
		return
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "variadic_parameter":
			sig.Variadic = true
		case "parameter_declaration":
			typeNode := child.ChildByFieldName("type")
			if typeNode == nil {
				continue
			}
			base := p.baseType(typeNode, hasConstQualifier(child, src), src, file)
			t, name := base, ""
			if d := child.ChildByFieldName("declarator"); d != nil {
				t, name = p.applyDeclarator(base, d, src, file)
			}
			sig.Params = append(sig.Params, ParamDecl{Name: name, Type: t})
		}
	}
	// f(void) declares no parameters.
	if len(sig.Params) == 1 && sig.Params[0].Name == "" &&
		sig.Params[0].Type.Kind == RefPrim && sig.Params[0].Type.Spelling == "void" {
		sig.Params = nil
	}
}

func isDeclaratorNode(typ string) bool {
	switch typ {
	case "identifier", "field_identifier", "type_identifier",
		"pointer_declarator", "abstract_pointer_declarator",
		"array_declarator", "abstract_array_declarator",
		"function_declarator", "abstract_function_declarator",
		"parenthesized_declarator", "abstract_parenthesized_declarator":
		return true
	}
	return false
}

func hasConstQualifier(node *sitter.Node, src []byte) bool {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() == "type_qualifier" && child.Content(src) == "const" {
			return true
		}
	}
	return false
}

func location(node *sitter.Node, file string) Location {
	return Location{File: file, Line: int(node.StartPoint().Row) + 1}
}

func normalizeSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// evalConst evaluates the constant expressions that show up in enumerator
// values, array sizes and bit-field widths. prior carries already-seen
// enumerators for identifier references.
func evalConst(node *sitter.Node, src []byte, prior map[string]int64) (int64, bool) {
	switch node.Type() {
	case "number_literal":
		return parseIntLiteral(node.Content(src))

	case "char_literal":
		if v, err := strconv.Unquote(node.Content(src)); err == nil && len(v) > 0 {
			return int64(v[0]), true
		}
		return 0, false

	case "identifier":
		if prior != nil {
			if v, ok := prior[node.Content(src)]; ok {
				return v, true
			}
		}
		return 0, false

	case "parenthesized_expression":
		if inner := node.NamedChild(0); inner != nil {
			return evalConst(inner, src, prior)
		}
		return 0, false

	case "unary_expression":
		op := node.ChildByFieldName("operator")
		arg := node.ChildByFieldName("argument")
		if op == nil || arg == nil {
			return 0, false
		}
		v, ok := evalConst(arg, src, prior)
		if !ok {
			return 0, false
		}
		switch op.Content(src) {
		case "-":
			return -v, true
		case "+":
			return v, true
		case "~":
			return ^v, true
		}
		return 0, false

	case "binary_expression":
		op := node.ChildByFieldName("operator")
		left := node.ChildByFieldName("left")
		right := node.ChildByFieldName("right")
		if op == nil || left == nil || right == nil {
			return 0, false
		}
		l, ok := evalConst(left, src, prior)
		if !ok {
			return 0, false
		}
		r, ok := evalConst(right, src, prior)
		if !ok {
			return 0, false
		}
		switch op.Content(src) {
		case "+":
			return l + r, true
		case "-":
			return l - r, true
		case "*":
			return l * r, true
		case "/":
			if r == 0 {
				return 0, false
			}
			return l / r, true
		case "<<":
			return l << uint(r), true
		case ">>":
			return l >> uint(r), true
		case "|":
			return l | r, true
		case "&":
			return l & r, true
		case "^":
			return l ^ r, true
		}
		return 0, false
	}
	return 0, false
}

// parseIntLiteral parses a C integer literal, tolerating the u/l suffixes.
func parseIntLiteral(s string) (int64, bool) {
	s = strings.TrimRight(s, "uUlL")
	if s == "" {
		return 0, false
	}
	if v, err := strconv.ParseInt(s, 0, 64); err == nil {
		return v, true
	}
	if v, err := strconv.ParseUint(s, 0, 64); err == nil {
		return int64(v), true
	}
	return 0, false
}
