package tui

import (
	"go/ast"
	"go/parser"
	"go/token"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackend_ExportedMethodsDocumented(t *testing.T) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "backend.go", nil, parser.ParseComments)
	require.NoError(t, err)

	var methods int
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Recv == nil || !fn.Name.IsExported() {
			continue
		}
		methods++
		assert.NotNil(t, fn.Doc, "%s has no doc comment", fn.Name.Name)
	}
	assert.Equal(t, 18, methods)
}
