package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// ManifestFilename is looked up under the data directory; when absent the
// built-in defaults apply
const ManifestFilename = "sources.yaml"

// DefaultBaseURL is the feed provider root
const DefaultBaseURL = "https://share.jesmann.com"

// Manifest maps timeframe and feed type to the provider folder that carries
// those feeds.
//
// Folder layout at the provider as of late 2025:
//
//	3-day feeds   updated once daily (late afternoon)
//	7-day feeds   updated once daily (early afternoon)
//	14-day feeds  updated three times daily
type Manifest struct {
	BaseURL string                       `yaml:"base_url"`
	Folders map[string]map[string]string `yaml:"folders"` // timeframe -> feed type -> folder

	UpdateFrequencies map[string]string `yaml:"update_frequencies,omitempty"`
}

// DefaultManifest returns the built-in provider layout
func DefaultManifest() *Manifest {
	return &Manifest{
		BaseURL: DefaultBaseURL,
		Folders: map[string]map[string]string{
			"3":  {"iptv": "3dayiptv", "gracenote": "3daygracenote"},
			"7":  {"iptv": "7dayiptv", "gracenote": "7daygracenote"},
			"14": {"iptv": "14dayiptv", "gracenote": "14daygracenote"},
		},
		UpdateFrequencies: map[string]string{
			"3":  "Updated once daily (late afternoon)",
			"7":  "Updated once daily (early afternoon)",
			"14": "Updated three times daily (Overnight, Morning, Evening)",
		},
	}
}

// LoadManifest reads the manifest at path, falling back to the built-in
// defaults when the file does not exist. Fields omitted from the file keep
// their default values.
func LoadManifest(fs afero.Fs, path string) (*Manifest, error) {
	m := DefaultManifest()
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	var override Manifest
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if override.BaseURL != "" {
		m.BaseURL = override.BaseURL
	}
	if len(override.Folders) > 0 {
		m.Folders = override.Folders
	}
	if len(override.UpdateFrequencies) > 0 {
		m.UpdateFrequencies = override.UpdateFrequencies
	}
	return m, nil
}

// FolderFor resolves the provider folder for a timeframe and feed type,
// falling back to the 3-day IPTV folder for unknown combinations
func (m *Manifest) FolderFor(timeframeDays int, feedType string) string {
	if byType, ok := m.Folders[strconv.Itoa(timeframeDays)]; ok {
		if folder, ok := byType[feedType]; ok {
			return folder
		}
	}
	return "3dayiptv"
}

// SourceURL builds the download URL for one source file
func (m *Manifest) SourceURL(timeframeDays int, feedType, source string) string {
	return m.BaseURL + "/" + m.FolderFor(timeframeDays, feedType) + "/" + source
}
