package backup

import (
	"time"

	"github.com/goccy/go-json"
)

// ManifestVersion is the current manifest format.
const ManifestVersion = 1

// Manifest describes one backup.
type Manifest struct {
	Version   int         `json:"version"`
	ID        string      `json:"id"`
	CreatedAt time.Time   `json:"created_at"`
	Files     []FileEntry `json:"files"`
}

// FileEntry describes one backed-up file.
type FileEntry struct {
	// Name is the base name of the original file.
	Name string `json:"name"`
	// Blob is the blob name of the compressed copy.
	Blob string `json:"blob"`
	// Size is the uncompressed size in bytes.
	Size int64 `json:"size"`
	// StoredSize is the compressed size in bytes.
	StoredSize int64 `json:"stored_size"`
	// CRC32C is the checksum of the uncompressed content.
	CRC32C uint32 `json:"crc32c"`
}

// TotalSize returns the uncompressed size of all files.
func (m *Manifest) TotalSize() int64 {
	var n int64
	for _, f := range m.Files {
		n += f.Size
	}
	return n
}

func manifestName(id string) string {
	return id + "/MANIFEST.json"
}

func encodeManifest(m *Manifest) ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}

func decodeManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
