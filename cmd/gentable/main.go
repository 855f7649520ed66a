// Command gentable regenerates sysc's dispatch table init() function from
// the package's own SYS_* constant block, instead of requiring the table
// to be kept in sync by hand. It loads the target package's syntax with
// go/packages, walks the const block to recover the ordered syscall
// names, maps each to the handler function name the package's own naming
// convention predicts (SYS_EXIT_GROUP -> sysExitGroup), confirms that
// function actually exists in the package's type information, and emits
// a replacement assignment list through go/format.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"go/ast"
	"go/format"
	"go/token"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/tools/go/packages"
)

func main() {
	dir := flag.String("dir", "./src/sysc", "directory of the package holding the SYS_* table")
	out := flag.String("out", "", "output file; defaults to <dir>/table_gen.go")
	flag.Parse()

	if *out == "" {
		*out = filepath.Join(*dir, "table_gen.go")
	}

	if err := run(*dir, *out); err != nil {
		fmt.Fprintf(os.Stderr, "gentable: %v\n", err)
		os.Exit(1)
	}
}

func run(dir, out string) error {
	cfg := &packages.Config{
		Mode: packages.NeedName | packages.NeedSyntax | packages.NeedTypes | packages.NeedTypesInfo,
		Dir:  dir,
	}
	pkgs, err := packages.Load(cfg, ".")
	if err != nil {
		return fmt.Errorf("load %s: %w", dir, err)
	}
	if packages.PrintErrors(pkgs) > 0 {
		return fmt.Errorf("errors loading %s", dir)
	}
	if len(pkgs) != 1 {
		return fmt.Errorf("expected exactly one package in %s, got %d", dir, len(pkgs))
	}
	pkg := pkgs[0]

	names, err := syscallNames(pkg)
	if err != nil {
		return err
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "// Code generated by cmd/gentable from the SYS_* constant block. DO NOT EDIT.\n\n")
	fmt.Fprintf(&b, "package %s\n\n", pkg.Name)
	fmt.Fprintf(&b, "func init() {\n")
	for _, n := range names {
		handler := handlerName(n)
		if pkg.Types.Scope().Lookup(handler) == nil {
			return fmt.Errorf("no handler %s for constant SYS_%s", handler, n)
		}
		fmt.Fprintf(&b, "\ttable[SYS_%s] = %s\n", n, handler)
	}
	fmt.Fprintf(&b, "}\n")

	src, err := format.Source(b.Bytes())
	if err != nil {
		return fmt.Errorf("gofmt generated source: %w", err)
	}
	return os.WriteFile(out, src, 0o644)
}

// syscallNames walks the package's first const block containing SYS_EXIT
// and returns the SYS_* names (without the prefix) in declaration order,
// stopping before the closing sysCount sentinel.
func syscallNames(pkg *packages.Package) ([]string, error) {
	var names []string
	for _, f := range pkg.Syntax {
		for _, decl := range f.Decls {
			gd, ok := decl.(*ast.GenDecl)
			if !ok || gd.Tok != token.CONST {
				continue
			}
			if !declaresSyscallBlock(gd) {
				continue
			}
			for _, spec := range gd.Specs {
				vs := spec.(*ast.ValueSpec)
				for _, id := range vs.Names {
					if id.Name == "sysCount" {
						return names, nil
					}
					if !strings.HasPrefix(id.Name, "SYS_") {
						continue
					}
					names = append(names, strings.TrimPrefix(id.Name, "SYS_"))
				}
			}
			return names, nil
		}
	}
	return nil, fmt.Errorf("no SYS_* const block found")
}

func declaresSyscallBlock(gd *ast.GenDecl) bool {
	for _, spec := range gd.Specs {
		vs, ok := spec.(*ast.ValueSpec)
		if !ok {
			continue
		}
		for _, id := range vs.Names {
			if id.Name == "SYS_EXIT" {
				return true
			}
		}
	}
	return false
}

// handlerName maps a SYS_* suffix like EXIT_GROUP to the lowerCamelCase
// handler name sysc's handlers follow: sysExitGroup.
func handlerName(suffix string) string {
	parts := strings.Split(suffix, "_")
	var b strings.Builder
	b.WriteString("sys")
	for _, p := range parts {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(strings.ToLower(p[1:]))
	}
	return b.String()
}
