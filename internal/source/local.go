package source

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/spf13/afero"

	"imagededup/internal/hash"
	"imagededup/internal/models"
)

// TrashDir is the folder under the root that removed items are moved to
const TrashDir = ".trash"

// ErrOutsideRoot is returned for IDs that would resolve outside the root
var ErrOutsideRoot = errors.New("path escapes source root")

// Local is an item source backed by a directory tree. Item IDs are
// slash-separated paths relative to the root.
type Local struct {
	fs   afero.Fs
	root string
}

// NewLocal creates a Local source rooted at root
func NewLocal(fsys afero.Fs, root string) *Local {
	return &Local{fs: fsys, root: filepath.Clean(root)}
}

// Root returns the directory the source reads from
func (l *Local) Root() string {
	return l.root
}

// Discover walks the root for supported images. Hidden directories (including
// the trash) are skipped and IDs are returned sorted.
func (l *Local) Discover(ctx context.Context) ([]models.Item, error) {
	var found []models.Item

	err := afero.Walk(l.fs, l.root, func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			return nil // Skip unreadable entries
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if info.IsDir() {
			if p != l.root && strings.HasPrefix(info.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !hash.IsSupportedImage(p) {
			return nil
		}

		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return nil
		}
		id := filepath.ToSlash(rel)
		found = append(found, models.Item{
			ID:         id,
			PayloadRef: id,
			Size:       info.Size(),
			ModTime:    info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", l.root, err)
	}

	sort.Slice(found, func(i, j int) bool {
		return found[i].ID < found[j].ID
	})
	return found, nil
}

// Path resolves an item ID to a path on the underlying filesystem
func (l *Local) Path(id string) (string, error) {
	slashed := strings.ReplaceAll(id, "\\", "/")
	for _, seg := range strings.Split(slashed, "/") {
		if seg == ".." {
			return "", fmt.Errorf("%w: %q", ErrOutsideRoot, id)
		}
	}

	clean := strings.TrimPrefix(path.Clean("/"+slashed), "/")
	if clean == "" {
		return "", fmt.Errorf("%w: %q", ErrOutsideRoot, id)
	}
	return filepath.Join(l.root, filepath.FromSlash(clean)), nil
}

// FetchPayload reads the item's file
func (l *Local) FetchPayload(ctx context.Context, item models.Item) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ref := item.PayloadRef
	if ref == "" {
		ref = item.ID
	}
	p, err := l.Path(ref)
	if err != nil {
		return nil, err
	}
	return afero.ReadFile(l.fs, p)
}

// Metadata stats the item's file and reads its dimensions and EXIF capture
// time. Missing EXIF or an undecodable header is not an error.
func (l *Local) Metadata(ctx context.Context, id string) (models.ItemMetadata, error) {
	if err := ctx.Err(); err != nil {
		return models.ItemMetadata{}, err
	}

	p, err := l.Path(id)
	if err != nil {
		return models.ItemMetadata{}, err
	}

	info, err := l.fs.Stat(p)
	if err != nil {
		return models.ItemMetadata{}, err
	}
	if info.IsDir() {
		return models.ItemMetadata{}, fmt.Errorf("%s is a directory", id)
	}

	meta := models.ItemMetadata{
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}

	if cfg, format, err := l.decodeConfig(p); err == nil {
		meta.Width = cfg.Width
		meta.Height = cfg.Height
		meta.Format = format
	}

	l.readExif(p, &meta)
	return meta, nil
}

func (l *Local) decodeConfig(p string) (image.Config, string, error) {
	f, err := l.fs.Open(p)
	if err != nil {
		return image.Config{}, "", err
	}
	defer f.Close()
	return image.DecodeConfig(f)
}

func (l *Local) readExif(p string, meta *models.ItemMetadata) {
	f, err := l.fs.Open(p)
	if err != nil {
		return
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		return
	}
	meta.HasExif = true

	// DateTime prefers DateTimeOriginal and falls back to DateTime
	if t, err := x.DateTime(); err == nil {
		meta.CaptureTime = t
	}
}
