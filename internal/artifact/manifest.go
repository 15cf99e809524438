package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mwiater/mergeval/internal/util"
)

// ManifestFile is the name of the provenance file written next to the weights.
const ManifestFile = "manifest.json"

// excluded holds files written by mergeval itself, which never contribute to the weights digest.
var excluded = map[string]bool{
	ManifestFile:  true,
	"record.json": true,
}

// FileEntry is one weight file and its digest.
type FileEntry struct {
	Path   string `json:"path"`
	Digest string `json:"digest"`
	Size   int64  `json:"size"`
}

// Manifest records what produced a weights directory.
type Manifest struct {
	RunID     string      `json:"run_id"`
	CreatedAt string      `json:"created_at"`
	Method    string      `json:"method"`
	Dataset   string      `json:"dataset"`
	Split     string      `json:"split"`
	Task      string      `json:"task"`
	Models    []string    `json:"models"`
	BaseIndex int         `json:"base_index"`
	Signs     []float64   `json:"signs"`
	Backend   string      `json:"backend"`
	Digest    string      `json:"digest"`
	Files     []FileEntry `json:"files"`
}

// NewManifest stamps a manifest with a fresh run id and the current time.
func NewManifest(now time.Time) Manifest {
	return Manifest{
		RunID:     uuid.NewString(),
		CreatedAt: now.UTC().Format(time.RFC3339),
	}
}

// WriteManifest digests every weight file under dir and writes manifest.json.
func WriteManifest(dir string, m Manifest) (Manifest, error) {
	digest, files, err := DigestTree(dir)
	if err != nil {
		return Manifest{}, err
	}
	m.Digest = digest
	m.Files = files

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return Manifest{}, fmt.Errorf("encode manifest: %w", err)
	}
	if err := util.WriteFile(filepath.Join(dir, ManifestFile), append(data, '\n')); err != nil {
		return Manifest{}, fmt.Errorf("write manifest: %w", err)
	}
	return m, nil
}

// DigestTree hashes every file under root (except mergeval's own outputs) and
// returns a sha256 over the sorted "path\x00digest\x00size\n" lines.
func DigestTree(root string) (string, []FileEntry, error) {
	entries := make([]FileEntry, 0)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		norm := filepath.ToSlash(rel)
		if excluded[norm] {
			return nil
		}
		fileDigest, size, err := digestFile(path)
		if err != nil {
			return err
		}
		entries = append(entries, FileEntry{Path: norm, Digest: fileDigest, Size: size})
		return nil
	})
	if err != nil {
		return "", nil, fmt.Errorf("walk tree %s: %w", root, err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})

	var sb strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&sb, "%s\x00%s\x00%d\n", e.Path, e.Digest, e.Size)
	}
	h := sha256.Sum256([]byte(sb.String()))
	return "sha256:" + hex.EncodeToString(h[:]), entries, nil
}

func digestFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("open file %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, fmt.Errorf("hash file %s: %w", path, err)
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil)), n, nil
}
