package parser

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDetectLanguageKnownExtensions(t *testing.T) {
	cases := map[string]Language{
		"a.go":  LangGo,
		"a.py":  LangPython,
		"a.ts":  LangTypeScript,
		"a.tsx": LangTSX,
		"a.js":  LangJavaScript,
		"a.jsx": LangJavaScript,
		"a.rs":  LangRust,
	}
	for path, want := range cases {
		got, err := DetectLanguage(path)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestDetectLanguageUnsupportedExtension(t *testing.T) {
	_, err := DetectLanguage("a.rb")
	require.ErrorIs(t, err, ErrUnsupportedExtension)
}

const goSample = `package sample

// Add returns the sum of two ints.
func Add(a, b int) int {
	if a > 0 && b > 0 {
		return a + b
	}
	return a - b
}

type Greeter struct{}

// Greet says hello.
func (g *Greeter) Greet(name string) string {
	return "hello " + Add(1, 2)
}
`

func TestExtractGoFunctionsAndMethod(t *testing.T) {
	syms, err := Extract("sample.go", LangGo, []byte(goSample))
	require.NoError(t, err)

	names := make(map[string]string)
	for i := range syms {
		names[syms[i].Name] = string(syms[i].Kind)
	}
	require.Equal(t, "function", names["Add"])
	require.Equal(t, "struct", names["Greeter"])
	require.Equal(t, "method", names["Greet"])
}

func TestExtractGoDocComment(t *testing.T) {
	syms, err := Extract("sample.go", LangGo, []byte(goSample))
	require.NoError(t, err)
	for _, s := range syms {
		if s.Name == "Add" {
			require.Contains(t, s.Metadata.DocComment, "Add returns the sum")
		}
	}
}

func TestExtractGoCyclomaticComplexity(t *testing.T) {
	syms, err := Extract("sample.go", LangGo, []byte(goSample))
	require.NoError(t, err)
	for _, s := range syms {
		if s.Name == "Add" {
			// base 1 + if + && = 3
			require.Equal(t, 3, s.Metadata.CyclomaticComplexity)
		}
	}
}

func TestExtractGoReferenceToAddFromGreet(t *testing.T) {
	syms, err := Extract("sample.go", LangGo, []byte(goSample))
	require.NoError(t, err)
	found := false
	for _, s := range syms {
		if s.Name != "Greet" {
			continue
		}
		for _, r := range s.References {
			if r.Kind == "call" {
				found = true
			}
		}
	}
	require.True(t, found, "expected Greet to carry a call reference to Add")
}

const pySample = `class Greeter:
    def greet(self, name):
        if name and True:
            return "hi " + name
        return "hi"
`

func TestExtractPythonMethodNesting(t *testing.T) {
	syms, err := Extract("sample.py", LangPython, []byte(pySample))
	require.NoError(t, err)
	kinds := make(map[string]string)
	for _, s := range syms {
		kinds[s.Name] = string(s.Kind)
	}
	require.Equal(t, "class", kinds["Greeter"])
	require.Equal(t, "method", kinds["greet"])
}

func TestExtractEmptySourceYieldsNoSymbols(t *testing.T) {
	syms, err := Extract("empty.go", LangGo, []byte("package sample\n"))
	require.NoError(t, err)
	require.Empty(t, syms)
}
