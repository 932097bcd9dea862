// Package fslint provides a linter that detects direct filesystem operations
// in packages that are expected to go through an injected afero.Fs.
package fslint

import (
	"fmt"
	"go/ast"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/tools/go/analysis"
)

var configFile string

// Config represents the fslint configuration.
type Config struct {
	ScanDirs        []string            `toml:"scan_dirs"`
	AllowedPackages []string            `toml:"allowed_packages"`
	ForbiddenCalls  map[string][]string `toml:"forbidden_calls"`
	// SkipTests leaves _test.go files alone.
	SkipTests bool `toml:"skip_tests"`
}

// DefaultConfig scans internal/ and lets only the command layer touch the
// real filesystem.
func DefaultConfig() *Config {
	return &Config{
		ScanDirs:        []string{"internal/"},
		AllowedPackages: []string{"internal/cli"},
		ForbiddenCalls: map[string][]string{
			"os": {
				"Open", "OpenFile", "Create", "CreateTemp", "MkdirTemp",
				"ReadFile", "WriteFile", "ReadDir",
				"Remove", "RemoveAll", "Rename", "Mkdir", "MkdirAll",
				"Stat", "Lstat", "Chmod", "Truncate",
			},
			"io/ioutil": {"ReadFile", "WriteFile", "ReadDir", "TempFile", "TempDir"},
		},
		SkipTests: true,
	}
}

// Analyzer is the fslint analyzer configured through its -config flag.
var Analyzer = NewAnalyzer(func() (*Config, error) { return loadConfig(configFile) })

// NewAnalyzer creates an analyzer that reads its configuration from load on
// every run.
func NewAnalyzer(load func() (*Config, error)) *analysis.Analyzer {
	return &analysis.Analyzer{
		Name: "fslint",
		Doc:  "detects direct filesystem operations in packages that must use an injected afero.Fs",
		Run: func(pass *analysis.Pass) (interface{}, error) {
			cfg, err := load()
			if err != nil {
				return nil, err
			}
			return run(pass, cfg)
		},
	}
}

func init() {
	Analyzer.Flags.StringVar(&configFile, "config", "", "path to fslint config file (built-in defaults when empty)")
}

func loadConfig(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return &cfg, nil
}

func run(pass *analysis.Pass, cfg *Config) (interface{}, error) {
	pkgPath := pass.Pkg.Path()
	if !shouldScanPackage(pkgPath, cfg.ScanDirs) || isAllowedPackage(pkgPath, cfg.AllowedPackages) {
		return nil, nil
	}

	forbidden := buildForbiddenSet(cfg.ForbiddenCalls)

	for _, file := range pass.Files {
		if cfg.SkipTests && strings.HasSuffix(pass.Fset.Position(file.Pos()).Filename, "_test.go") {
			continue
		}
		imports := buildImportMap(file)

		// Selectors rather than calls, so passing os.ReadFile as a value is
		// caught as well.
		ast.Inspect(file, func(n ast.Node) bool {
			sel, ok := n.(*ast.SelectorExpr)
			if !ok {
				return true
			}
			ident, ok := sel.X.(*ast.Ident)
			if !ok {
				return true
			}
			importPath, ok := imports[ident.Name]
			if !ok {
				return true
			}
			if forbidden[importPath][sel.Sel.Name] {
				pass.Reportf(sel.Pos(), "direct filesystem operation %s.%s is not allowed in this package (use the injected afero.Fs instead)", ident.Name, sel.Sel.Name)
			}
			return true
		})
	}

	return nil, nil
}

func buildForbiddenSet(calls map[string][]string) map[string]map[string]bool {
	set := make(map[string]map[string]bool, len(calls))
	for pkg, funcs := range calls {
		set[pkg] = make(map[string]bool, len(funcs))
		for _, fn := range funcs {
			set[pkg][fn] = true
		}
	}
	return set
}

// shouldScanPackage checks if the package path should be scanned based on scan_dirs config.
func shouldScanPackage(pkgPath string, scanDirs []string) bool {
	for _, dir := range scanDirs {
		if strings.Contains(pkgPath, "/"+dir) || strings.HasPrefix(pkgPath, dir) {
			return true
		}
	}
	return false
}

// isAllowedPackage checks if pkgPath matches any allowed package or is a subpackage of it.
func isAllowedPackage(pkgPath string, allowedPackages []string) bool {
	for _, allowed := range allowedPackages {
		if matchesPackagePath(pkgPath, allowed) {
			return true
		}
	}
	return false
}

// matchesPackagePath checks if pkgPath matches the pattern or is a subpackage of it.
// Pattern examples: "internal/cli", "internal/relay"
func matchesPackagePath(pkgPath, pattern string) bool {
	return strings.HasSuffix(pkgPath, "/"+pattern) ||
		strings.Contains(pkgPath, "/"+pattern+"/") ||
		pkgPath == pattern ||
		strings.HasPrefix(pkgPath, pattern+"/")
}

// buildImportMap builds a map from import alias to package path.
func buildImportMap(file *ast.File) map[string]string {
	imports := make(map[string]string)
	for _, imp := range file.Imports {
		path := strings.Trim(imp.Path.Value, `"`)
		var name string
		if imp.Name != nil {
			name = imp.Name.Name
		} else {
			parts := strings.Split(path, "/")
			name = parts[len(parts)-1]
		}
		imports[name] = path
	}
	return imports
}
