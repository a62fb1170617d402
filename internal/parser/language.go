package parser

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Language is the closed set of languages the parser adapter supports.
type Language string

const (
	LangGo         Language = "go"
	LangRust       Language = "rust"
	LangTypeScript Language = "typescript"
	LangTSX        Language = "tsx"
	LangJavaScript Language = "javascript"
	LangPython     Language = "python"
)

// ErrUnsupportedExtension is returned by DetectLanguage for any extension
// outside the closed set.
var ErrUnsupportedExtension = fmt.Errorf("unsupported file extension")

// DetectLanguage maps a file path's extension to a supported Language.
func DetectLanguage(path string) (Language, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".go":
		return LangGo, nil
	case ".rs":
		return LangRust, nil
	case ".ts":
		return LangTypeScript, nil
	case ".tsx":
		return LangTSX, nil
	case ".js", ".jsx":
		return LangJavaScript, nil
	case ".py":
		return LangPython, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedExtension, filepath.Ext(path))
	}
}
