package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

var ErrOutsideRoot = errors.New("source: location is outside the root directory")

// LocalFetcher reads files from an afero filesystem. When root is set, relative
// locations are resolved against it and no location may leave it, absolute
// or through "..". With an empty root any readable path is served.
type LocalFetcher struct {
	fs   afero.Fs
	root string
}

func NewLocalFetcher(fs afero.Fs, root string) *LocalFetcher {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &LocalFetcher{fs: fs, root: root}
}

func (f *LocalFetcher) resolve(location string) (string, error) {
	p := filepath.FromSlash(location)
	if f.root == "" {
		return filepath.Clean(p), nil
	}

	root := filepath.Clean(f.root)
	if !filepath.IsAbs(p) {
		p = filepath.Join(root, p)
	}
	p = filepath.Clean(p)

	rel, err := filepath.Rel(root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, location)
	}
	return p, nil
}

func (f *LocalFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := f.resolve(location)
	if err != nil {
		return nil, &AcquisitionError{Location: location, Err: err}
	}
	data, err := afero.ReadFile(f.fs, p)
	if err != nil {
		return nil, &AcquisitionError{Location: location, Err: err}
	}
	return data, nil
}

// List walks a directory (recursively) for files whose extension matches ext,
// case-insensitively. Results are sorted by location.
func (f *LocalFetcher) List(ctx context.Context, location, ext string) ([]FileMeta, error) {
	p, err := f.resolve(location)
	if err != nil {
		return nil, &AcquisitionError{Location: location, Err: err}
	}
	info, err := f.fs.Stat(p)
	if err != nil {
		return nil, &AcquisitionError{Location: location, Err: err}
	}
	if !info.IsDir() {
		return []FileMeta{{Location: location, Size: info.Size(), LastModified: info.ModTime()}}, nil
	}

	var out []FileMeta
	err = afero.Walk(f.fs, p, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if fi.IsDir() || strings.HasPrefix(fi.Name(), ".") {
			return nil
		}
		if ext != "" && !strings.EqualFold(filepath.Ext(fi.Name()), ext) {
			return nil
		}
		rel, err := filepath.Rel(p, path)
		if err != nil {
			return err
		}
		out = append(out, FileMeta{
			Location:     filepath.ToSlash(filepath.Join(location, rel)),
			Size:         fi.Size(),
			LastModified: fi.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, &AcquisitionError{Location: location, Err: err}
	}
	if len(out) == 0 {
		return nil, &AcquisitionError{Location: location, Err: fmt.Errorf("no %q files in directory", ext)}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Location < out[j].Location })
	return out, nil
}
