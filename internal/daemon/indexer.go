package daemon

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/antigravity-dev/meridian/internal/parser"
)

// indexConcurrency bounds parallel file parses during a project walk.
const indexConcurrency = 8

// skipDirs are directory names never descended into during a project walk.
var skipDirs = map[string]bool{".git": true, "node_modules": true, "vendor": true, "target": true}

// IndexProject walks root and indexes every supported source file with
// bounded concurrency, skipping paths matched by the configured ignore
// globs. A file that fails to parse is skipped with a warning; it does
// not fail the walk.
func (d *Daemon) IndexProject(ctx context.Context, root string) (indexed, skipped int, err error) {
	ignore := d.ignoreFunc()

	var files []string
	walkErr := filepath.WalkDir(root, func(path string, de fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if de.IsDir() {
			if skipDirs[de.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if _, err := parser.DetectLanguage(path); err != nil {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if walkErr != nil {
		return 0, 0, fmt.Errorf("daemon: walk %s: %w", root, walkErr)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(indexConcurrency)
	for _, path := range files {
		g.Go(func() error {
			if err := d.Symbols.UpdateFile(gctx, path, nil, ignore); err != nil {
				d.Logger.Warn("index skipped file", "path", path, "error", err)
				mu.Lock()
				skipped++
				mu.Unlock()
				return nil
			}
			mu.Lock()
			indexed++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return indexed, skipped, err
	}
	return indexed, skipped, nil
}

// ignoreFunc compiles the configured ignore globs into the predicate the
// symbol index consults per file. Globs match against both the base name
// and the full path.
func (d *Daemon) ignoreFunc() func(string) bool {
	globs := d.Config.Parser.IgnoreGlobs
	if len(globs) == 0 {
		return nil
	}
	return func(path string) bool {
		for _, g := range globs {
			if ok, _ := filepath.Match(g, filepath.Base(path)); ok {
				return true
			}
			if ok, _ := filepath.Match(g, path); ok {
				return true
			}
		}
		return false
	}
}
