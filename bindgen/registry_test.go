package bindgen

import (
	"errors"
	"testing"

	"gobindgen/parser"
)

type testLogger struct {
	errors []string
	warns  []string
}

func (l *testLogger) Error(msg string) { l.errors = append(l.errors, msg) }
func (l *testLogger) Warn(msg string)  { l.warns = append(l.warns, msg) }

func prim(s string) *parser.TypeRef {
	return &parser.TypeRef{Kind: parser.RefPrim, Spelling: s}
}

func namedRef(id, spelling string) *parser.TypeRef {
	return &parser.TypeRef{Kind: parser.RefNamed, RefID: id, Spelling: spelling}
}

func ptr(elem *parser.TypeRef) *parser.TypeRef {
	return &parser.TypeRef{Kind: parser.RefPointer, Elem: elem}
}

func structDef(tag string, fields ...parser.FieldDecl) parser.Decl {
	return parser.Decl{
		Kind:       parser.DeclStruct,
		ID:         parser.StructID(tag),
		Name:       tag,
		Definition: true,
		Fields:     fields,
	}
}

func field(name string, t *parser.TypeRef) parser.FieldDecl {
	return parser.FieldDecl{Name: name, Type: t, Bits: -1}
}

func bitField(name string, t *parser.TypeRef, bits int) parser.FieldDecl {
	return parser.FieldDecl{Name: name, Type: t, Bits: bits}
}

func buildRegistry(t *testing.T, opts *Options, decls ...parser.Decl) (*registry, *testLogger) {
	t.Helper()
	if opts == nil {
		opts = &Options{}
	}
	log := &testLogger{}
	reg := newRegistry(opts, log)
	if err := reg.registerAll(decls); err != nil {
		t.Fatalf("registerAll: %v", err)
	}
	return reg, log
}

func TestRegisterDedup(t *testing.T) {
	forward := parser.Decl{
		Kind: parser.DeclStruct,
		ID:   parser.StructID("node"),
		Name: "node",
	}
	def := structDef("node", field("v", prim("int")))

	reg, _ := buildRegistry(t, nil, forward, def, forward)

	if len(reg.order) != 1 {
		t.Fatalf("want 1 global, got %d", len(reg.order))
	}
	g := reg.order[0]
	if g.Kind != GComp {
		t.Fatalf("forward + definition should promote to GComp, got %v", g.Kind)
	}
	if len(g.Comp.Fields) != 1 {
		t.Fatalf("want 1 field, got %d", len(g.Comp.Fields))
	}
}

func TestSelfReferentialStruct(t *testing.T) {
	def := structDef("node",
		field("next", ptr(namedRef(parser.StructID("node"), "struct node"))),
		field("v", prim("int")),
	)

	reg, _ := buildRegistry(t, nil, def)

	g := reg.order[0]
	p, ok := g.Comp.Fields[0].Type.(Pointer)
	if !ok {
		t.Fatalf("next should resolve to a pointer, got %T", g.Comp.Fields[0].Type)
	}
	n, ok := p.Elem.(Named)
	if !ok {
		t.Fatalf("pointer element should be a named reference, got %T", p.Elem)
	}
	if n.Def != g {
		t.Fatal("self-reference should resolve to the same canonical node")
	}
}

func TestMutualRecursion(t *testing.T) {
	a := structDef("a", field("b", ptr(namedRef(parser.StructID("b"), "struct b"))))
	b := structDef("b", field("a", ptr(namedRef(parser.StructID("a"), "struct a"))))

	reg, _ := buildRegistry(t, nil, a, b)

	if len(reg.order) != 2 {
		t.Fatalf("want 2 globals, got %d", len(reg.order))
	}
	ga, gb := reg.order[0], reg.order[1]
	if ga.Kind != GComp || gb.Kind != GComp {
		t.Fatalf("both nodes should be filled, got %v and %v", ga.Kind, gb.Kind)
	}
	if ga.Comp.Fields[0].Type.(Pointer).Elem.(Named).Def != gb {
		t.Fatal("a.b should point at b's node")
	}
	if gb.Comp.Fields[0].Type.(Pointer).Elem.(Named).Def != ga {
		t.Fatal("b.a should point at a's node")
	}
}

func TestUnknownTypeStrict(t *testing.T) {
	def := structDef("s", field("x", prim("__weird_t")))

	log := &testLogger{}
	reg := newRegistry(&Options{FailOnUnknownType: true}, log)
	err := reg.registerAll([]parser.Decl{def})
	if err == nil {
		t.Fatal("strict mode should fail on an unknown type")
	}
	var ute *UnknownTypeError
	if !errors.As(err, &ute) {
		t.Fatalf("want UnknownTypeError, got %T", err)
	}
	if ute.Spelling != "__weird_t" {
		t.Fatalf("want spelling __weird_t, got %q", ute.Spelling)
	}
}

func TestUnknownTypeLenient(t *testing.T) {
	def := structDef("s", field("x", prim("__weird_t")))

	reg, log := buildRegistry(t, nil, def)

	g := reg.order[0]
	u, ok := g.Comp.Fields[0].Type.(Unknown)
	if !ok {
		t.Fatalf("lenient mode should degrade to Unknown, got %T", g.Comp.Fields[0].Type)
	}
	if u.Spelling != "__weird_t" {
		t.Fatalf("placeholder should keep the spelling, got %q", u.Spelling)
	}
	if len(log.warns) == 0 {
		t.Fatal("degradation should be reported through the logger")
	}
}

func TestEnumKindInference(t *testing.T) {
	cases := []struct {
		name   string
		values []int64
		want   IKind
	}{
		{"small", []int64{0, 1, 2}, IInt},
		{"negative", []int64{-1, 0}, IInt},
		{"over int32", []int64{0, 3_000_000_000}, IUInt},
		{"big negative", []int64{-3_000_000_000, 0}, ILongLong},
		{"over uint32", []int64{0, 5_000_000_000}, IULongLong},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var items []parser.EnumItemDecl
			for i, v := range tc.values {
				items = append(items, parser.EnumItemDecl{Name: "V" + string(rune('A'+i)), Value: v})
			}
			def := parser.Decl{
				Kind:       parser.DeclEnum,
				ID:         parser.EnumID(tc.name),
				Name:       tc.name,
				Definition: true,
				Items:      items,
			}
			reg, _ := buildRegistry(t, nil, def)
			if got := reg.order[0].Enum.Kind; got != tc.want {
				t.Fatalf("want %v, got %v", tc.want, got)
			}
		})
	}
}

func TestEnumKindOverride(t *testing.T) {
	k := IUShort
	def := parser.Decl{
		Kind:       parser.DeclEnum,
		ID:         parser.EnumID("e"),
		Name:       "e",
		Definition: true,
		Items:      []parser.EnumItemDecl{{Name: "A", Value: 0}},
	}
	reg, _ := buildRegistry(t, &Options{OverrideEnumTy: &k}, def)
	if got := reg.order[0].Enum.Kind; got != IUShort {
		t.Fatalf("override should force IUShort, got %v", got)
	}
}

func TestTypedefAdoptsAnonymousName(t *testing.T) {
	inline := &parser.Decl{
		Kind:       parser.DeclStruct,
		ID:         "struct@p.h:3",
		Definition: true,
		Fields:     []parser.FieldDecl{field("x", prim("int"))},
	}
	td := parser.Decl{
		Kind:       parser.DeclTypedef,
		ID:         parser.TypedefID("point"),
		Name:       "point",
		Definition: true,
		Type:       &parser.TypeRef{Kind: parser.RefInline, Inline: inline},
	}

	reg, _ := buildRegistry(t, nil, td)

	var comp *Global
	for _, g := range reg.order {
		if g.Kind == GComp {
			comp = g
		}
	}
	if comp == nil {
		t.Fatal("inline struct should be registered")
	}
	if comp.Anonymous || comp.Name != "point" {
		t.Fatalf("aggregate should adopt the typedef name, got name=%q anonymous=%v",
			comp.Name, comp.Anonymous)
	}
}

func TestStructLayout(t *testing.T) {
	def := structDef("s",
		field("a", prim("char")),
		field("b", prim("int")),
		field("c", prim("long")),
	)
	reg, _ := buildRegistry(t, nil, def)

	c := reg.order[0].Comp
	wantOffsets := []int{0, 4, 8}
	for i, w := range wantOffsets {
		if c.Fields[i].Offset != w {
			t.Errorf("field %d: want offset %d, got %d", i, w, c.Fields[i].Offset)
		}
	}
	if c.Size != 16 || c.Align != 8 {
		t.Fatalf("want size 16 align 8, got size %d align %d", c.Size, c.Align)
	}
}

func TestBitFieldPacking(t *testing.T) {
	def := structDef("s",
		bitField("a", prim("unsigned int"), 3),
		bitField("b", prim("unsigned int"), 5),
		bitField("c", prim("unsigned int"), 30),
	)
	reg, _ := buildRegistry(t, nil, def)

	c := reg.order[0].Comp
	if c.Fields[0].Offset != 0 || c.Fields[1].Offset != 0 {
		t.Fatal("a and b should share the first storage unit")
	}
	if c.Fields[2].Offset != 4 {
		t.Fatalf("c should start a new unit at offset 4, got %d", c.Fields[2].Offset)
	}
	if c.Size != 8 || c.Align != 4 {
		t.Fatalf("want size 8 align 4, got size %d align %d", c.Size, c.Align)
	}
}

func TestZeroWidthBitFieldClosesUnit(t *testing.T) {
	def := structDef("s",
		bitField("a", prim("unsigned int"), 3),
		bitField("", prim("unsigned int"), 0),
		bitField("b", prim("unsigned int"), 3),
	)
	reg, _ := buildRegistry(t, nil, def)

	c := reg.order[0].Comp
	if c.Fields[0].Offset != 0 {
		t.Fatalf("a should sit at offset 0, got %d", c.Fields[0].Offset)
	}
	if c.Fields[2].Offset != 4 {
		t.Fatalf("b should land in a fresh unit at offset 4, got %d", c.Fields[2].Offset)
	}
}

func TestUnionLayout(t *testing.T) {
	def := parser.Decl{
		Kind:       parser.DeclUnion,
		ID:         parser.UnionID("u"),
		Name:       "u",
		Definition: true,
		Fields: []parser.FieldDecl{
			field("i", prim("int")),
			field("d", prim("double")),
		},
	}
	reg, _ := buildRegistry(t, nil, def)

	c := reg.order[0].Comp
	if !c.IsUnion {
		t.Fatal("node should be a union")
	}
	if c.Fields[0].Offset != 0 || c.Fields[1].Offset != 0 {
		t.Fatal("union members all sit at offset 0")
	}
	if c.Size != 8 || c.Align != 8 {
		t.Fatalf("want size 8 align 8, got size %d align %d", c.Size, c.Align)
	}
}

func TestForwardOnlyStaysDeclaration(t *testing.T) {
	fn := parser.Decl{
		Kind:       parser.DeclFunc,
		ID:         parser.FuncID("use"),
		Name:       "use",
		Definition: true,
		Sig: &parser.SigDecl{
			Ret: prim("void"),
			Params: []parser.ParamDecl{
				{Name: "w", Type: ptr(namedRef(parser.StructID("window"), "struct window"))},
			},
		},
	}
	reg, _ := buildRegistry(t, nil, fn)

	var comp *Global
	for _, g := range reg.order {
		if g.Name == "window" {
			comp = g
		}
	}
	if comp == nil {
		t.Fatal("referenced tag should get a placeholder node")
	}
	if comp.Kind != GCompDecl {
		t.Fatalf("never-defined tag should stay a declaration, got %v", comp.Kind)
	}
}

func TestIntKindTable(t *testing.T) {
	cases := []struct {
		spelling string
		want     IKind
	}{
		{"char", ISChar},
		{"unsigned char", IUChar},
		{"short", IShort},
		{"int", IInt},
		{"unsigned", IUInt},
		{"long", ILong},
		{"size_t", IULong},
		{"int64_t", ILongLong},
		{"uint64_t", IULongLong},
		{"uintptr_t", IULong},
	}
	for _, tc := range cases {
		k, ok := intKind(tc.spelling)
		if !ok || k != tc.want {
			t.Errorf("%s: want %v, got %v (ok=%v)", tc.spelling, tc.want, k, ok)
		}
	}
}
