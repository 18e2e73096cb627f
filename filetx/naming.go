package filetx

import (
	"fmt"
	"path"
	"strings"

	"github.com/spf13/afero"
)

// A NameGenerator derives a non-colliding sibling path for a requested path
// whose target already exists. The collision-avoidance rule is owned by the
// generator, not by the operations consulting it.
type NameGenerator interface {
	UniqueName(fs afero.Fs, cpath string) (string, error)
}

// SuffixNameGenerator is the default NameGenerator. It inserts an
// incrementing numeric suffix before the extension: "b.txt" becomes
// "b-1.txt", then "b-2.txt", and so on.
type SuffixNameGenerator struct{}

// maxNameAttempts bounds the suffix search.
const maxNameAttempts = 10000

// UniqueName returns the first suffixed sibling of |cpath| which does not
// exist on |fs|.
func (SuffixNameGenerator) UniqueName(fs afero.Fs, cpath string) (string, error) {
	var ext = path.Ext(cpath)
	var stem = strings.TrimSuffix(cpath, ext)

	for i := 1; i <= maxNameAttempts; i++ {
		var candidate = fmt.Sprintf("%s-%d%s", stem, i, ext)

		if exists, err := afero.Exists(fs, candidate); err != nil {
			return "", wrapEnvironmentError(err, "checking %s", candidate)
		} else if !exists {
			return candidate, nil
		}
	}
	return "", NewEnvironmentError("no unique name found for %s", cpath)
}
