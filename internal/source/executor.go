package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/afero"

	"imagededup/internal/processor"
)

// Tagger records labels for items
type Tagger interface {
	TagItem(id, label string) error
}

// Executor applies dedup actions to files under a Local source's root.
// Tags go to the Tagger since plain files carry no keyword field.
type Executor struct {
	local  *Local
	tagger Tagger
}

// NewExecutor creates an Executor. tagger may be nil, in which case tag
// actions are reported as unsupported.
func NewExecutor(local *Local, tagger Tagger) *Executor {
	return &Executor{local: local, tagger: tagger}
}

// Apply performs action on the item's file
func (e *Executor) Apply(ctx context.Context, id string, action processor.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	src, err := e.local.Path(id)
	if err != nil {
		return err
	}

	switch action.Kind {
	case processor.ActionTag:
		if e.tagger == nil {
			return fmt.Errorf("%w: no tag store", processor.ErrUnsupportedAction)
		}
		if _, err := e.local.fs.Stat(src); err != nil {
			return err
		}
		return e.tagger.TagItem(id, action.Label)

	case processor.ActionCollection:
		if action.Target == "" {
			return fmt.Errorf("%w: collection needs a target folder", processor.ErrUnsupportedAction)
		}
		dest := action.Target
		if !filepath.IsAbs(dest) {
			dest = filepath.Join(e.local.root, dest)
		}
		_, err := MoveFile(e.local.fs, src, dest)
		return err

	case processor.ActionRemove:
		_, err := MoveFile(e.local.fs, src, filepath.Join(e.local.root, TrashDir))
		return err

	case processor.ActionDelete:
		return e.local.fs.Remove(src)

	default:
		return fmt.Errorf("%w: %q", processor.ErrUnsupportedAction, action.Kind)
	}
}

// MoveFile moves a file to the destination directory and returns its new
// path. If a file with the same name exists, it appends a counter
// (e.g., file_1.jpg).
func MoveFile(fsys afero.Fs, src, destDir string) (string, error) {
	if err := fsys.MkdirAll(destDir, 0755); err != nil {
		return "", err
	}

	filename := filepath.Base(src)
	destName := findUniqueName(filename, func(name string) bool {
		_, err := fsys.Stat(filepath.Join(destDir, name))
		return os.IsNotExist(err)
	})

	dest := filepath.Join(destDir, destName)
	return dest, moveAcrossFS(fsys, src, dest)
}

// findUniqueName finds a unique filename by appending a counter if needed.
// isAvailable should return true if the name can be used.
func findUniqueName(filename string, isAvailable func(string) bool) string {
	if isAvailable(filename) {
		return filename
	}

	ext := filepath.Ext(filename)
	name := strings.TrimSuffix(filename, ext)
	for counter := 1; ; counter++ {
		candidate := fmt.Sprintf("%s_%d%s", name, counter, ext)
		if isAvailable(candidate) {
			return candidate
		}
	}
}

// moveAcrossFS renames src, falling back to copy+delete for
// cross-filesystem moves.
func moveAcrossFS(fsys afero.Fs, src, dest string) error {
	err := fsys.Rename(src, dest)
	if err == nil {
		return nil
	}

	var linkErr *os.LinkError
	if errors.As(err, &linkErr) && errors.Is(linkErr.Err, syscall.EXDEV) {
		if err := copyFile(fsys, src, dest); err != nil {
			return err
		}
		return fsys.Remove(src)
	}

	return err
}

func copyFile(fsys afero.Fs, src, dest string) error {
	srcFile, err := fsys.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	srcInfo, err := srcFile.Stat()
	if err != nil {
		return err
	}

	destFile, err := fsys.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, srcInfo.Mode())
	if err != nil {
		return err
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, srcFile); err != nil {
		fsys.Remove(dest) // Clean up on failure
		return err
	}

	return nil
}
