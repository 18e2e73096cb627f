package filetx

import (
	"path"
	"path/filepath"

	"github.com/spf13/afero"
)

// Dir is a minimal handle on a directory: the path, writability, parent,
// and temp-directory queries which file operations need. Directory-level
// operations beyond these (listing, creation) are out of scope.
type Dir struct {
	fs   *FS
	path string
}

// Dir returns a handle on the directory at |dpath|.
func (fs *FS) Dir(dpath string) (*Dir, error) {
	var cpath, err = CanonicalPath(dpath)
	if err != nil {
		return nil, err
	}
	return &Dir{fs: fs, path: cpath}, nil
}

// dirOf returns the handle of |cpath|'s containing directory.
func (fs *FS) dirOf(cpath string) *Dir {
	return &Dir{fs: fs, path: path.Dir(cpath)}
}

// Path returns the directory's canonical path.
func (d *Dir) Path() string { return d.path }

// IsWritable returns whether the directory exists and may be written.
func (d *Dir) IsWritable() bool {
	var fi, err = d.fs.backend.Stat(d.path)
	if err != nil || !fi.IsDir() {
		return false
	}
	return fi.Mode().Perm()&0200 != 0
}

// Parent returns the directory's parent, or the directory itself at the root.
func (d *Dir) Parent() *Dir {
	return &Dir{fs: d.fs, path: path.Dir(d.path)}
}

// Temp returns a handle on a temporary directory of the backend, creating
// it if needed.
func (d *Dir) Temp() *Dir {
	var tmp = afero.GetTempDir(d.fs.backend, "filetx")
	return &Dir{fs: d.fs, path: path.Clean(filepath.ToSlash(tmp))}
}
