// Package file discovers input files on the local filesystem.
package file

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
)

// ListJSON returns the absolute paths of every regular "*.json" file under
// root at any depth, sorted lexically. The suffix match is case-sensitive.
//
// Errors:
//   - root missing or not a directory.
//   - any unreadable subdirectory; a partial listing is never returned.
//   - ctx cancellation between entries.
func ListJSON(ctx context.Context, root string) ([]string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", root, err)
	}

	var out []string
	err = filepath.WalkDir(abs, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == abs && !d.IsDir() {
			return fmt.Errorf("%s is not a directory", root)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if ok, _ := filepath.Match("*.json", d.Name()); ok {
			out = append(out, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", root, err)
	}

	sort.Strings(out)
	return out, nil
}
