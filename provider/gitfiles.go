package provider

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
)

// GitFiles lists the files tracked by the git repository holding dir, in
// index order. Paths are relative to dir and files outside of dir are left
// out.
func GitFiles(dir string) ([]string, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("git.PlainOpen %s: %w", dir, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, err
	}
	idx, err := repo.Storer.Index()
	if err != nil {
		return nil, fmt.Errorf("git index %s: %w", dir, err)
	}

	rel, err := filepath.Rel(wt.Filesystem.Root(), dir)
	if err != nil {
		return nil, err
	}
	prefix := ""
	if rel != "." {
		prefix = filepath.ToSlash(rel) + "/"
	}

	files := make([]string, 0, len(idx.Entries))
	for _, e := range idx.Entries {
		if !strings.HasPrefix(e.Name, prefix) {
			continue
		}
		files = append(files, filepath.FromSlash(strings.TrimPrefix(e.Name, prefix)))
	}
	return files, nil
}
