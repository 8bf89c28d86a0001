package cmd

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"path/filepath"

	"github.com/memvault/memvault/internal/config"
	"github.com/memvault/memvault/internal/memory"
	"github.com/memvault/memvault/internal/model"
)

// defaultVectorDimensions is spec.md's example embedding width; the CLI
// enables the vector index at this width whenever search.vector.enabled
// is true, since nothing in the on-disk config names a dimension (the
// embedding model, and therefore its width, is a caller concern).
const defaultVectorDimensions = 384

// resolveScope parses the --scope flag into a model.Scope.
func resolveScope() (model.Scope, error) {
	switch flagScope {
	case "global":
		return model.ScopeGlobal, nil
	case "local":
		return model.ScopeLocal, nil
	case "committed":
		return model.ScopeCommitted, nil
	default:
		return "", fmt.Errorf("unknown scope %q (want global, local, or committed)", flagScope)
	}
}

// findProjectRoot walks up from startDir looking for .git or
// .memvault.yaml/.yml, the same two markers internal/config checks for
// a project config file. Falls back to startDir if neither is found.
func findProjectRoot(startDir string) (string, error) {
	abs, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}
	current := abs
	for {
		if dirExists(filepath.Join(current, ".git")) {
			return current, nil
		}
		for _, name := range []string{".memvault.yaml", ".memvault.yml"} {
			if fileExists(filepath.Join(current, name)) {
				return current, nil
			}
		}
		parent := filepath.Dir(current)
		if parent == current {
			return abs, nil
		}
		current = parent
	}
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// scopeDir maps a scope to its on-disk root: global lives under the
// user's home directory (shared across every project), local and
// committed live under the project root's .memvault directory.
func scopeDir(projectRoot string, scope model.Scope) (string, error) {
	if scope == model.ScopeGlobal {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".memvault", "global"), nil
	}
	return filepath.Join(projectRoot, ".memvault", string(scope)), nil
}

// actor identifies the current OS user for journal/snapshot attribution,
// falling back to "memvault-cli" when the lookup fails (e.g. no
// /etc/passwd entry in a minimal container).
func actor() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "memvault-cli"
}

// openManager resolves --root/--scope, loads process config, and opens
// the scope's Memory Manager. The returned close func must run before
// the command returns.
func openManager(ctx context.Context) (*memory.Manager, func(), error) {
	scope, err := resolveScope()
	if err != nil {
		return nil, nil, err
	}

	root := flagRoot
	if root == "" {
		root, err = findProjectRoot(".")
		if err != nil {
			return nil, nil, err
		}
	}

	cfg, err := config.Load(root)
	if err != nil {
		return nil, nil, err
	}

	dir, err := scopeDir(root, scope)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create scope directory: %w", err)
	}

	vecDims := 0
	if cfg.Search.Vector.Enabled {
		vecDims = defaultVectorDimensions
	}

	mgr, err := memory.Open(ctx, memory.Options{
		Root:             dir,
		Scope:            scope,
		Actor:            actor(),
		Config:           cfg,
		Logger:           activeLogger,
		VectorDimensions: vecDims,
	})
	if err != nil {
		return nil, nil, err
	}

	return mgr, func() { _ = mgr.Close() }, nil
}
