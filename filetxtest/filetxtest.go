// Package filetxtest provides FS fixtures over an in-memory backend,
// for use within tests.
package filetxtest

import (
	"github.com/spf13/afero"

	"go.filetx.dev/core/filetx"
)

// NewFS returns an FS over a fresh in-memory backend, seeded with |files|
// mapping path to content. It panics on a seeding failure.
func NewFS(files map[string]string, options ...filetx.FSOption) (*filetx.FS, afero.Fs) {
	var backend = afero.NewMemMapFs()

	for fpath, content := range files {
		if err := afero.WriteFile(backend, fpath, []byte(content), 0644); err != nil {
			panic(err.Error())
		}
	}
	return filetx.NewFS(backend, options...), backend
}
