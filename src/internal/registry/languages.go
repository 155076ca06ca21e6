package registry

import (
	"path"
	"sort"
	"strings"
	"time"

	"lsp-session-manager/src/internal/constants"
)

// LanguageInfo describes how to launch and talk to the language server for one language
type LanguageInfo struct {
	Name           string   // Language name (go, python, javascript, typescript, java, rust, c, cpp)
	LanguageID     string   // LSP languageId sent in didOpen
	Extensions     []string // File extensions for this language
	DefaultCommand string   // Default LSP server command
	DefaultArgs    []string // Default arguments for the LSP server

	InitializationOptions map[string]interface{} // LSP initialization options
	RequestTimeout        time.Duration
	InitializeTimeout     time.Duration
	EnvironmentVars       map[string]string // Extra environment, ${workingDir} is substituted
}

var languageRegistry = map[string]LanguageInfo{
	"go": {
		Name:           "go",
		LanguageID:     "go",
		Extensions:     []string{".go"},
		DefaultCommand: "gopls",
		DefaultArgs:    []string{"serve"},
		InitializationOptions: map[string]interface{}{
			"usePlaceholders":    false,
			"completeUnimported": true,
		},
		RequestTimeout:    constants.GetRequestTimeout("go"),
		InitializeTimeout: constants.GetInitializeTimeout("go"),
	},
	"python": {
		Name:              "python",
		LanguageID:        "python",
		Extensions:        []string{".py", ".pyi"},
		DefaultCommand:    "pyright-langserver",
		DefaultArgs:       []string{"--stdio"},
		RequestTimeout:    constants.GetRequestTimeout("python"),
		InitializeTimeout: constants.GetInitializeTimeout("python"),
	},
	"javascript": {
		Name:              "javascript",
		LanguageID:        "javascript",
		Extensions:        []string{".js", ".jsx", ".mjs", ".cjs"},
		DefaultCommand:    "typescript-language-server",
		DefaultArgs:       []string{"--stdio"},
		RequestTimeout:    constants.GetRequestTimeout("javascript"),
		InitializeTimeout: constants.GetInitializeTimeout("javascript"),
	},
	"typescript": {
		Name:              "typescript",
		LanguageID:        "typescript",
		Extensions:        []string{".ts", ".tsx", ".mts", ".cts"},
		DefaultCommand:    "typescript-language-server",
		DefaultArgs:       []string{"--stdio"},
		RequestTimeout:    constants.GetRequestTimeout("typescript"),
		InitializeTimeout: constants.GetInitializeTimeout("typescript"),
	},
	"java": {
		Name:           "java",
		LanguageID:     "java",
		Extensions:     []string{".java"},
		DefaultCommand: "jdtls",
		DefaultArgs:    []string{},
		InitializationOptions: map[string]interface{}{
			"settings": map[string]interface{}{
				"java": map[string]interface{}{
					"autobuild": map[string]interface{}{"enabled": false},
				},
			},
		},
		RequestTimeout:    constants.GetRequestTimeout("java"),
		InitializeTimeout: constants.GetInitializeTimeout("java"),
	},
	"rust": {
		Name:           "rust",
		LanguageID:     "rust",
		Extensions:     []string{".rs"},
		DefaultCommand: "rust-analyzer",
		DefaultArgs:    []string{},
		InitializationOptions: map[string]interface{}{
			"checkOnSave": map[string]interface{}{
				"enable":  true,
				"command": "check",
			},
			"procMacro": map[string]interface{}{
				"enable": true,
			},
		},
		RequestTimeout:    constants.GetRequestTimeout("rust"),
		InitializeTimeout: constants.GetInitializeTimeout("rust"),
		EnvironmentVars: map[string]string{
			"CARGO_MANIFEST_DIR": "${workingDir}",
		},
	},
	"cpp": {
		Name:              "cpp",
		LanguageID:        "cpp",
		Extensions:        []string{".cpp", ".cc", ".cxx", ".hpp", ".hh", ".hxx"},
		DefaultCommand:    "clangd",
		DefaultArgs:       []string{},
		RequestTimeout:    constants.GetRequestTimeout("cpp"),
		InitializeTimeout: constants.GetInitializeTimeout("cpp"),
	},
	"c": {
		Name:              "c",
		LanguageID:        "c",
		Extensions:        []string{".c", ".h"},
		DefaultCommand:    "clangd",
		DefaultArgs:       []string{},
		RequestTimeout:    constants.GetRequestTimeout("c"),
		InitializeTimeout: constants.GetInitializeTimeout("c"),
	},
}

var languageAliases = map[string]string{
	"golang": "go",
	"py":     "python",
	"js":     "javascript",
	"ts":     "typescript",
	"c++":    "cpp",
	"rs":     "rust",
}

// extension -> languageId, React variants get their own ids
var extensionLanguageIDs = buildExtensionIndex()

func buildExtensionIndex() map[string]string {
	idx := make(map[string]string)
	for _, lang := range languageRegistry {
		for _, ext := range lang.Extensions {
			idx[ext] = lang.LanguageID
		}
	}
	idx[".tsx"] = "typescriptreact"
	idx[".jsx"] = "javascriptreact"
	return idx
}

// NormalizeLanguage lowercases name and resolves common aliases
func NormalizeLanguage(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := languageAliases[n]; ok {
		return alias
	}
	return n
}

// GetSupportedLanguages returns every built-in language sorted by name
func GetSupportedLanguages() []LanguageInfo {
	out := make([]LanguageInfo, 0, len(languageRegistry))
	for _, name := range GetLanguageNames() {
		out = append(out, languageRegistry[name])
	}
	return out
}

// GetLanguageByName returns the built-in entry for name, aliases accepted
func GetLanguageByName(name string) (*LanguageInfo, bool) {
	lang, ok := languageRegistry[NormalizeLanguage(name)]
	if !ok {
		return nil, false
	}
	return &lang, true
}

// GetLanguageNames returns the sorted list of built-in language names
func GetLanguageNames() []string {
	names := make([]string, 0, len(languageRegistry))
	for name := range languageRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func IsLanguageSupported(name string) bool {
	_, ok := languageRegistry[NormalizeLanguage(name)]
	return ok
}

// LanguageIDForPath maps a file path or URI to an LSP languageId by extension.
// Unknown extensions map to "plaintext".
func LanguageIDForPath(p string) string {
	ext := strings.ToLower(path.Ext(p))
	if id, ok := extensionLanguageIDs[ext]; ok {
		return id
	}
	return "plaintext"
}

// GetInitOptions returns a copy of the initialization options for this language
func (l *LanguageInfo) GetInitOptions() map[string]interface{} {
	result := make(map[string]interface{}, len(l.InitializationOptions))
	for k, v := range l.InitializationOptions {
		result[k] = v
	}
	return result
}

// GetEnvironmentWithWorkingDir returns environment variables with workingDir substituted
func (l *LanguageInfo) GetEnvironmentWithWorkingDir(workingDir string) map[string]string {
	result := make(map[string]string, len(l.EnvironmentVars))
	for k, v := range l.EnvironmentVars {
		if v == "${workingDir}" && workingDir != "" {
			result[k] = workingDir
		} else {
			result[k] = v
		}
	}
	return result
}

// CommandLine renders the default command and args for display
func (l *LanguageInfo) CommandLine() string {
	return strings.TrimSpace(l.DefaultCommand + " " + strings.Join(l.DefaultArgs, " "))
}
