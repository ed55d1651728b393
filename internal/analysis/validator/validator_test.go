package validator

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validCode = `package main

import "github.com/pushkal/server/pkg/tabular"

var df = tabular.ReadFile("data/sales.csv")

var result = df.Select([]string{"Region", "Revenue"})
`

func TestValidateAcceptsWellFormedCode(t *testing.T) {
	r := New().Validate(validCode)
	require.True(t, r.Valid, r.Errors)
	assert.Empty(t, r.Errors)
	assert.Equal(t, validCode, r.Code)
}

func TestValidateEmpty(t *testing.T) {
	r := New().Validate("  \n ")
	assert.False(t, r.Valid)
	assert.Equal(t, []string{"No code generated"}, r.Errors)
}

func TestValidateForbiddenPatterns(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		pattern string
	}{
		{"os import", "package main\nimport \"os\"\nvar result = os.Getpid()\n", `"os"`},
		{"exec", "package main\nimport \"os/exec\"\nvar result = exec.Command(\"ls\")\n", "exec.command"},
		{"system call text", "package main\n// os.system('rm')\nvar result = 1\n", "os.system"},
		{"write csv", "package main\nfunc main() { df.WriteCSV(w) }\nvar result = 1\n", ".writecsv("},
		{"sql", "package main\nvar result = \"DELETE FROM users\"\n", "delete from"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New().Validate(tt.code)
			assert.False(t, r.Valid)
			found := false
			for _, e := range r.Errors {
				if strings.EqualFold(e, "Forbidden pattern detected: "+tt.pattern) {
					found = true
				}
			}
			assert.True(t, found, "errors: %v", r.Errors)
		})
	}
}

func TestValidateSyntaxError(t *testing.T) {
	r := New().Validate("package main\nvar result = (1 +\n")
	assert.False(t, r.Valid)
	require.NotEmpty(t, r.Errors)
	assert.True(t, strings.HasPrefix(r.Errors[0], "Syntax error:"), r.Errors[0])
	assert.LessOrEqual(t, len(r.Errors), maxSyntaxErrors)
}

func TestValidateRequiresResult(t *testing.T) {
	r := New().Validate("package main\nvar answer = 42\n")
	assert.False(t, r.Valid)
	assert.Contains(t, r.Errors, "Code must define a 'result' variable")
}

func TestValidateRejectsOtherPackages(t *testing.T) {
	r := New().Validate("package analysis\nvar result = 1\n")
	assert.False(t, r.Valid)
	assert.Contains(t, r.Errors[0], "package main")
}

func TestValidatePrependsPackageClause(t *testing.T) {
	r := New().Validate("var result = 7\n")
	require.True(t, r.Valid, r.Errors)
	assert.True(t, strings.HasPrefix(r.Code, "package main\n"))
}

func TestValidateInsertsMissingImports(t *testing.T) {
	code := `package main

var df = tabular.ReadFile("data/sales.csv")

var result = stat.Mean(df.Col("Revenue").Float(), nil)
`
	r := New().Validate(code)
	require.True(t, r.Valid, r.Errors)
	assert.Contains(t, r.Code, `"github.com/pushkal/server/pkg/tabular"`)
	assert.Contains(t, r.Code, `"gonum.org/v1/gonum/stat"`)
	assert.NotContains(t, r.Code, `"github.com/go-gota/gota/dataframe"`)
}

func TestValidateInsertsScalarImport(t *testing.T) {
	r := New().Validate("package main\n\nvar result = scalar.Round(1.005, 2)\n")
	require.True(t, r.Valid, r.Errors)
	assert.Contains(t, r.Code, `"gonum.org/v1/gonum/floats/scalar"`)
}

func TestValidateLeavesShadowedNamesAlone(t *testing.T) {
	code := `package main

type box struct{ Mean float64 }

var stat = box{Mean: 2}

var result = stat.Mean
`
	r := New().Validate(code)
	require.True(t, r.Valid, r.Errors)
	assert.Equal(t, code, r.Code)
}
