package gen

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"go/types"
	"os"
	"sort"
	"strconv"
	"strings"
)

const (
	busImport     = "github.com/GabrielCarpr/mediator/bus"
	resultImport  = "github.com/GabrielCarpr/mediator/result"
	contextImport = "context"
	iterImport    = "iter"
)

// Kind is the kind of a message type, read from the bus type it embeds
type Kind string

const (
	Command Kind = "command"
	Query   Kind = "query"
	Event   Kind = "event"
	Stream  Kind = "stream"
)

var markers = map[string]Kind{
	"CommandType": Command,
	"QueryType":   Query,
	"EventType":   Event,
	"StreamType":  Stream,
}

type Severity int

const (
	Warning Severity = iota
	Error
)

func (s Severity) String() string {
	if s == Error {
		return "error"
	}
	return "warning"
}

// Diagnostic is a problem found by a scan. Any Error drops the run's output.
type Diagnostic struct {
	Pos      token.Position
	Severity Severity
	Message  string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s: %s", d.Pos, d.Severity, d.Message)
}

// Binding is one entry of a generated binding table
type Binding struct {
	Func    string
	Message string
	Result  string
	Impl    string
}

// Expr is the Go expression building the binding
func (b Binding) Expr() string {
	args := b.Message
	if b.Result != "" {
		args += ", " + b.Result
	}
	return fmt.Sprintf("bus.%s[%s](%s)", b.Func, args, b.Impl)
}

// Report is the outcome of a scan
type Report struct {
	Package  string
	Bindings []Binding
	// Imports maps the import paths the bindings use to their names
	Imports     map[string]string
	Diagnostics []Diagnostic
}

// Failed reports whether any diagnostic is an error
func (r Report) Failed() bool {
	for _, d := range r.Diagnostics {
		if d.Severity == Error {
			return true
		}
	}
	return false
}

type scanner struct {
	cfg  Config
	fset *token.FileSet
	rep  *Report

	// messages by local type name, and by import path + "." + type name
	messages map[string]Kind
	types    map[string]*ast.TypeSpec
	seen     map[string]bool
}

// Scan inspects the handler package of c
func Scan(c Config) (Report, error) {
	c = c.withDefaults()
	if err := c.valid(); err != nil {
		return Report{}, err
	}
	s := &scanner{
		cfg:      c,
		fset:     token.NewFileSet(),
		rep:      &Report{Imports: map[string]string{}},
		messages: map[string]Kind{},
		types:    map[string]*ast.TypeSpec{},
		seen:     map[string]bool{},
	}

	pkg, err := s.parse(c.Dir, c.Output)
	if err != nil {
		return Report{}, err
	}
	s.rep.Package = pkg.Name
	s.declare(pkg, "")
	for _, m := range c.Messages {
		other, err := s.parse(m.Dir, "")
		if err != nil {
			return Report{}, err
		}
		s.declare(other, m.Import)
	}

	for _, name := range sortedFiles(pkg) {
		s.file(pkg.Files[name])
	}

	sort.SliceStable(s.rep.Bindings, func(i, j int) bool {
		return s.rep.Bindings[i].Expr() < s.rep.Bindings[j].Expr()
	})
	return *s.rep, nil
}

// parse reads the non test package of dir, skipping the file named skip
func (s *scanner) parse(dir, skip string) (*ast.Package, error) {
	filter := func(fi os.FileInfo) bool {
		return !strings.HasSuffix(fi.Name(), "_test.go") && fi.Name() != skip
	}
	pkgs, err := parser.ParseDir(s.fset, dir, filter, parser.SkipObjectResolution)
	if err != nil {
		return nil, err
	}
	for _, p := range pkgs {
		return p, nil
	}
	return nil, fmt.Errorf("no Go package in %s", dir)
}

func sortedFiles(p *ast.Package) []string {
	names := make([]string, 0, len(p.Files))
	for name := range p.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// declare records the message types of p, keyed by name when p is the handler
// package and by importPath.name otherwise
func (s *scanner) declare(p *ast.Package, importPath string) {
	for _, f := range p.Files {
		busName := importName(f, busImport)
		for _, decl := range f.Decls {
			gd, ok := decl.(*ast.GenDecl)
			if !ok || gd.Tok != token.TYPE {
				continue
			}
			for _, spec := range gd.Specs {
				ts := spec.(*ast.TypeSpec)
				key := ts.Name.Name
				if importPath != "" {
					key = importPath + "." + key
				} else {
					s.types[key] = ts
				}
				if kind, ok := messageKind(ts, busName, importPath == "" && p.Name == "bus"); ok {
					s.messages[key] = kind
				}
			}
		}
	}
}

func messageKind(ts *ast.TypeSpec, busName string, inBus bool) (Kind, bool) {
	st, ok := ts.Type.(*ast.StructType)
	if !ok {
		return "", false
	}
	for _, field := range st.Fields.List {
		if len(field.Names) > 0 {
			continue
		}
		t := field.Type
		if ix, ok := t.(*ast.IndexExpr); ok {
			t = ix.X
		}
		var name string
		switch x := t.(type) {
		case *ast.SelectorExpr:
			if pkg, ok := x.X.(*ast.Ident); ok && pkg.Name == busName {
				name = x.Sel.Name
			}
		case *ast.Ident:
			if inBus {
				name = x.Name
			}
		}
		if kind, ok := markers[name]; ok {
			return kind, true
		}
	}
	return "", false
}

// importName is the name f refers to importPath by, or "" when f doesn't import it
func importName(f *ast.File, importPath string) string {
	for _, imp := range f.Imports {
		p, err := strconv.Unquote(imp.Path.Value)
		if err != nil || p != importPath {
			continue
		}
		if imp.Name != nil {
			return imp.Name.Name
		}
		return localName(p)
	}
	return ""
}

// imports maps the names f refers to packages by to their paths
func imports(f *ast.File) map[string]string {
	out := map[string]string{}
	for _, imp := range f.Imports {
		p, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			continue
		}
		name := localName(p)
		if imp.Name != nil {
			name = imp.Name.Name
		}
		out[name] = p
	}
	return out
}

func (s *scanner) diag(pos token.Pos, sev Severity, format string, args ...interface{}) {
	s.rep.Diagnostics = append(s.rep.Diagnostics, Diagnostic{
		Pos:      s.fset.Position(pos),
		Severity: sev,
		Message:  fmt.Sprintf(format, args...),
	})
}

// method is a Handle or Process method under inspection
type method struct {
	fd      *ast.FuncDecl
	file    *ast.File
	recv    string
	impl    string
	params  []ast.Expr
	results []ast.Expr
}

func (s *scanner) file(f *ast.File) {
	names := imports(f)
	for _, decl := range f.Decls {
		fd, ok := decl.(*ast.FuncDecl)
		if !ok || fd.Recv == nil || len(fd.Recv.List) != 1 {
			continue
		}
		if fd.Name.Name != "Handle" && fd.Name.Name != "Process" {
			continue
		}
		m, ok := s.receiver(fd)
		if !ok {
			continue
		}
		m.file = f
		m.params = flatten(fd.Type.Params)
		m.results = flatten(fd.Type.Results)
		if len(m.params) < 2 || !isSelector(m.params[0], importName(f, contextImport), "Context") {
			continue
		}
		s.method(m, names)
	}
}

func (s *scanner) receiver(fd *ast.FuncDecl) (method, bool) {
	t := fd.Recv.List[0].Type
	pointer := false
	if star, ok := t.(*ast.StarExpr); ok {
		pointer = true
		t = star.X
	}
	ident, ok := t.(*ast.Ident)
	if !ok {
		s.diag(fd.Pos(), Warning, "%s of a generic type is skipped, bind it with bus.OnOpen", fd.Name.Name)
		return method{}, false
	}
	ts, ok := s.types[ident.Name]
	if !ok {
		return method{}, false
	}
	if _, ok := ts.Type.(*ast.StructType); !ok {
		s.diag(fd.Pos(), Warning, "%s.%s is skipped, only struct types are bound", ident.Name, fd.Name.Name)
		return method{}, false
	}

	impl := ident.Name + "{}"
	if pointer {
		impl = "&" + impl
	}
	return method{fd: fd, recv: ident.Name, impl: impl}, true
}

func (s *scanner) method(m method, names map[string]string) {
	resultName := importName(m.file, resultImport)
	msg := m.params[1]
	kind, found, known := s.kindOf(msg, names)
	if !known {
		s.diag(m.fd.Pos(), Error, "%s.%s takes %s, from a package not listed under messages", m.recv, m.fd.Name.Name, types.ExprString(msg))
		return
	}
	if !found {
		return
	}

	var b Binding
	switch {
	case m.fd.Name.Name == "Process" && len(m.params) == 2 && returnsError(m.results):
		b = Binding{Func: "PreProcess"}
		if kind != Command && kind != Query {
			s.diag(m.fd.Pos(), Error, "%s pre-processes %s, a %s", m.recv, types.ExprString(msg), kind)
			return
		}

	case m.fd.Name.Name == "Process" && len(m.params) == 3 && returnsError(m.results):
		r, ok := indexOf(m.params[2], resultName, "Result")
		if !ok {
			return
		}
		b = Binding{Func: "PostProcess", Result: s.qualify(r, names)}

	case m.fd.Name.Name == "Handle" && len(m.params) == 2 && returnsError(m.results):
		if kind != Event {
			s.diag(m.fd.Pos(), Error, "%s handles %s, a %s, without a result", m.recv, types.ExprString(msg), kind)
			return
		}
		b = Binding{Func: "OnEvent"}

	case m.fd.Name.Name == "Handle" && len(m.params) == 2 && len(m.results) == 2:
		r, ok := indexOf(m.results[0], resultName, "Result")
		if !ok || !isError(m.results[1]) {
			s.diag(m.fd.Pos(), Warning, "%s.Handle is not a handler", m.recv)
			return
		}
		switch kind {
		case Command:
			b = Binding{Func: "OnCommand"}
		case Query:
			b = Binding{Func: "OnQuery"}
		default:
			s.diag(m.fd.Pos(), Error, "%s returns a result for %s, a %s", m.recv, types.ExprString(msg), kind)
			return
		}
		b.Result = s.qualify(r, names)

	case m.fd.Name.Name == "Handle" && len(m.params) == 2 && len(m.results) == 1:
		seq, ok := m.results[0].(*ast.IndexListExpr)
		if !ok || !isSelector(seq.X, importName(m.file, iterImport), "Seq2") || len(seq.Indices) != 2 {
			s.diag(m.fd.Pos(), Warning, "%s.Handle is not a handler", m.recv)
			return
		}
		if kind != Stream {
			s.diag(m.fd.Pos(), Error, "%s streams %s, a %s", m.recv, types.ExprString(msg), kind)
			return
		}
		b = Binding{Func: "OnStream", Result: s.qualify(seq.Indices[0], names)}

	default:
		// middlewares take a next func and are bound by hand, in order
		return
	}

	b.Message = s.qualify(msg, names)
	b.Impl = m.impl
	key := b.Func + "|" + b.Message + "|" + m.recv
	if s.seen[key] {
		return
	}
	s.seen[key] = true
	s.rep.Bindings = append(s.rep.Bindings, b)
}

// kindOf finds the message kind of a handler parameter type. known is false when
// the type comes from a package the scan has not read.
func (s *scanner) kindOf(e ast.Expr, names map[string]string) (kind Kind, found bool, known bool) {
	if star, ok := e.(*ast.StarExpr); ok {
		e = star.X
	}
	switch x := e.(type) {
	case *ast.IndexExpr:
		e = x.X
	case *ast.IndexListExpr:
		e = x.X
	}
	switch x := e.(type) {
	case *ast.Ident:
		kind, found = s.messages[x.Name]
		return kind, found, true
	case *ast.SelectorExpr:
		pkg, ok := x.X.(*ast.Ident)
		if !ok {
			return "", false, true
		}
		p := names[pkg.Name]
		if !s.scanned(p) {
			// standard library types are never messages
			std := !strings.Contains(strings.Split(p, "/")[0], ".")
			return "", false, p == "" || std
		}
		kind, found = s.messages[p+"."+x.Sel.Name]
		return kind, found, true
	}
	return "", false, true
}

func (s *scanner) scanned(importPath string) bool {
	for _, m := range s.cfg.Messages {
		if m.Import == importPath {
			return true
		}
	}
	return false
}

// qualify prints e for the generated file, recording the imports it needs. Packages
// whose name is taken by another import are aliased.
func (s *scanner) qualify(e ast.Expr, names map[string]string) string {
	ast.Inspect(e, func(n ast.Node) bool {
		sel, ok := n.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		pkg, ok := sel.X.(*ast.Ident)
		if !ok {
			return true
		}
		p, ok := names[pkg.Name]
		if !ok {
			return true
		}
		pkg.Name = s.use(p, pkg.Name)
		return false
	})
	return types.ExprString(e)
}

func (s *scanner) use(importPath, name string) string {
	if importPath == busImport {
		return "bus"
	}
	if existing, ok := s.rep.Imports[importPath]; ok {
		return existing
	}
	if name == "bus" {
		name = alias(importPath)
	}
	for _, taken := range s.rep.Imports {
		if taken == name {
			name = alias(importPath)
			break
		}
	}
	s.rep.Imports[importPath] = name
	return name
}

func flatten(fl *ast.FieldList) []ast.Expr {
	if fl == nil {
		return nil
	}
	var out []ast.Expr
	for _, f := range fl.List {
		n := len(f.Names)
		if n == 0 {
			n = 1
		}
		for i := 0; i < n; i++ {
			out = append(out, f.Type)
		}
	}
	return out
}

func isSelector(e ast.Expr, pkg, name string) bool {
	sel, ok := e.(*ast.SelectorExpr)
	if !ok || pkg == "" {
		return false
	}
	x, ok := sel.X.(*ast.Ident)
	return ok && x.Name == pkg && sel.Sel.Name == name
}

func isError(e ast.Expr) bool {
	ident, ok := e.(*ast.Ident)
	return ok && ident.Name == "error"
}

func returnsError(results []ast.Expr) bool {
	return len(results) == 1 && isError(results[0])
}

// indexOf returns T of pkg.name[T]
func indexOf(e ast.Expr, pkg, name string) (ast.Expr, bool) {
	ix, ok := e.(*ast.IndexExpr)
	if !ok || !isSelector(ix.X, pkg, name) {
		return nil, false
	}
	return ix.Index, true
}
