// Package validator checks generated analysis code before it reaches the
// sandbox. The denylist is a plain substring match and is not a security
// boundary on its own.
package validator

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/format"
	"go/parser"
	"go/scanner"
	"go/token"
	"strings"

	"golang.org/x/tools/go/ast/astutil"

	"github.com/pushkal/server/internal/analysis/model"
)

const (
	ResultIdent = "result"

	maxSyntaxErrors = 3
)

// Denylist is matched case-insensitively against the whole source text.
var Denylist = []string{
	`"os"`,
	`"os/exec"`,
	`"syscall"`,
	`"unsafe"`,
	`"net"`,
	`"net/http"`,
	`"plugin"`,
	`"reflect"`,
	`"io/ioutil"`,
	`"runtime/debug"`,
	"os.system",
	"os.popen",
	"exec.command",
	"syscall.",
	"os.remove",
	"os.create",
	"os.writefile",
	"os.openfile",
	"os.rename",
	"os.mkdir",
	"os.chmod",
	"ioutil.writefile",
	".writecsv(",
	".writejson(",
	"eval(",
	"exec(",
	"__import__",
	"rm -rf",
	"drop table",
	"delete from",
	"truncate ",
}

// Prebound maps the package names the sandbox exposes to their import paths.
// Missing imports for these are inserted instead of failing validation.
var Prebound = map[string]string{
	"dataframe": "github.com/go-gota/gota/dataframe",
	"series":    "github.com/go-gota/gota/series",
	"stat":      "gonum.org/v1/gonum/stat",
	"floats":    "gonum.org/v1/gonum/floats",
	"scalar":    "gonum.org/v1/gonum/floats/scalar",
	"tabular":   "github.com/pushkal/server/pkg/tabular",
}

type Validator struct {
	denylist []string
	prebound map[string]string
}

func New() *Validator {
	lowered := make([]string, len(Denylist))
	for i, p := range Denylist {
		lowered[i] = strings.ToLower(p)
	}
	return &Validator{denylist: lowered, prebound: Prebound}
}

// Validate runs every check and reports all failures together. On success
// Code carries the repaired source.
func (v *Validator) Validate(code string) model.ValidationReport {
	if strings.TrimSpace(code) == "" {
		return model.ValidationReport{Errors: []string{"No code generated"}}
	}

	var errs []string
	lower := strings.ToLower(code)
	for i, p := range v.denylist {
		if strings.Contains(lower, p) {
			errs = append(errs, "Forbidden pattern detected: "+Denylist[i])
		}
	}

	src := ensurePackageClause(code)
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "analysis.go", src, parser.ParseComments|parser.AllErrors)
	if err != nil {
		errs = append(errs, syntaxErrors(err)...)
		if !strings.Contains(code, ResultIdent) {
			errs = append(errs, "Code must define a 'result' variable")
		}
		return model.ValidationReport{Errors: errs}
	}

	if file.Name.Name != "main" {
		errs = append(errs, fmt.Sprintf("Code must be in package main, got package %s", file.Name.Name))
	}
	if !hasIdent(file, ResultIdent) {
		errs = append(errs, "Code must define a 'result' variable")
	}
	if len(errs) > 0 {
		return model.ValidationReport{Errors: errs}
	}

	if v.addMissingImports(fset, file) {
		var buf bytes.Buffer
		if err := format.Node(&buf, fset, file); err != nil {
			return model.ValidationReport{Errors: []string{"Syntax error: " + err.Error()}}
		}
		src = buf.String()
	}
	return model.ValidationReport{Valid: true, Errors: []string{}, Code: src}
}

func ensurePackageClause(code string) string {
	fset := token.NewFileSet()
	if _, err := parser.ParseFile(fset, "", code, parser.PackageClauseOnly); err == nil {
		return code
	}
	return "package main\n\n" + code
}

func syntaxErrors(err error) []string {
	list, ok := err.(scanner.ErrorList)
	if !ok {
		return []string{"Syntax error: " + err.Error()}
	}
	out := make([]string, 0, maxSyntaxErrors)
	for i, e := range list {
		if i == maxSyntaxErrors {
			break
		}
		out = append(out, "Syntax error: "+e.Error())
	}
	return out
}

func hasIdent(file *ast.File, name string) bool {
	found := false
	ast.Inspect(file, func(n ast.Node) bool {
		if found {
			return false
		}
		if id, ok := n.(*ast.Ident); ok && id.Name == name {
			found = true
		}
		return true
	})
	return found
}

// addMissingImports imports pre-bound packages that are referenced as a
// selector qualifier but neither imported nor declared in the file.
func (v *Validator) addMissingImports(fset *token.FileSet, file *ast.File) bool {
	imported := map[string]bool{}
	for _, spec := range file.Imports {
		path := strings.Trim(spec.Path.Value, `"`)
		name := path[strings.LastIndex(path, "/")+1:]
		if spec.Name != nil {
			name = spec.Name.Name
		}
		imported[name] = true
	}

	unresolved := map[string]bool{}
	for _, id := range file.Unresolved {
		unresolved[id.Name] = true
	}

	var missing []string
	ast.Inspect(file, func(n ast.Node) bool {
		sel, ok := n.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		x, ok := sel.X.(*ast.Ident)
		if !ok || imported[x.Name] || !unresolved[x.Name] {
			return true
		}
		if _, ok := v.prebound[x.Name]; ok {
			imported[x.Name] = true
			missing = append(missing, x.Name)
		}
		return true
	})

	changed := false
	for _, name := range missing {
		if astutil.AddImport(fset, file, v.prebound[name]) {
			changed = true
		}
	}
	return changed
}
