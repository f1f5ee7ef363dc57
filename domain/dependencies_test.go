package domain_test

import (
	"go/parser"
	"go/token"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const modulePath = "github.com/reglet-dev/toolhost/"

// allowedInternal lists the module packages the domain layer may import.
// abi is the plain-data boundary contract and depends only on entities.
var allowedInternal = []string{
	modulePath + "domain/",
	modulePath + "abi",
}

// TestDomainHasNoExternalDependencies verifies that the domain layer
// does not import from the host, application or infrastructure layers.
func TestDomainHasNoExternalDependencies(t *testing.T) {
	fset := token.NewFileSet()

	for _, pkg := range []string{"entities", "errors", "ports"} {
		files, err := filepath.Glob(filepath.Join(".", pkg, "*.go"))
		require.NoError(t, err, "failed to glob %s files", pkg)

		for _, file := range files {
			if strings.HasSuffix(file, "_test.go") {
				continue
			}
			checkFileImports(t, fset, file, pkg)
		}
	}
}

func checkFileImports(t *testing.T, fset *token.FileSet, filename, pkg string) {
	t.Helper()

	f, err := parser.ParseFile(fset, filename, nil, parser.ImportsOnly)
	require.NoError(t, err, "failed to parse %s", filename)

	for _, imp := range f.Imports {
		importPath := strings.Trim(imp.Path.Value, `"`)

		// Standard library only, besides the allowed module packages.
		if !strings.Contains(importPath, ".") {
			continue
		}
		assert.True(t, isAllowed(importPath),
			"domain/%s package (%s) must not import %s",
			pkg, filepath.Base(filename), importPath)
	}
}

func isAllowed(importPath string) bool {
	for _, prefix := range allowedInternal {
		if strings.HasPrefix(importPath, prefix) {
			return true
		}
	}
	return false
}

// TestDomainEntitiesPortsErrorsExist verifies that required domain packages exist
func TestDomainEntitiesPortsErrorsExist(t *testing.T) {
	for _, dir := range []string{"entities", "errors", "ports"} {
		files, err := filepath.Glob(filepath.Join(".", dir, "*.go"))

		require.NoError(t, err, "failed to check %s directory", dir)
		assert.NotEmpty(t, files, "domain/%s should contain Go files", dir)
	}
}
