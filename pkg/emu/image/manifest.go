package image

import (
	"os"

	"github.com/nacholabs/nacho/pkg/utils"
	"gopkg.in/yaml.v3"
)

// Manifest is an optional YAML sidecar shipped next to a program image,
// overriding execution defaults for that program.
type Manifest struct {
	// Entry point override, replacing the image header entry
	Entry *uint64 `yaml:"entry"`
	// Strict resolution of call symbols (fault on unresolved targets)
	Strict *bool `yaml:"strict"`
	// Preferred display backend ("term" or "none")
	Display string `yaml:"display"`
}

// LoadManifest reads a manifest sidecar. A missing file is not an error and
// yields a nil manifest.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, utils.MakeError(ErrBadImage, "bad manifest %s: %v", path, err)
	}

	return &manifest, nil
}

// Apply folds the manifest overrides into an image
func (m *Manifest) Apply(img *Image) {
	if m == nil {
		return
	}
	if m.Entry != nil {
		img.Entry = *m.Entry
	}
}
