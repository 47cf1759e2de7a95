package archive

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
)

// Info holds metadata about an existing archive file.
type Info struct {
	Path      string
	Filename  string
	Size      int64
	Timestamp string // From the manifest, or the file mod time
	Players   int
	Channels  int
}

// ListArchives returns the archives in dir, newest first.
func ListArchives(dir string) ([]Info, error) {
	pattern := filepath.Join(dir, "*.tar.gz")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("archive: glob %s: %w", pattern, err)
	}

	var out []Info
	for _, path := range matches {
		st, err := os.Stat(path)
		if err != nil {
			continue
		}
		ai := Info{
			Path:      path,
			Filename:  filepath.Base(path),
			Size:      st.Size(),
			Timestamp: st.ModTime().UTC().Format("2006-01-02T15:04:05.000000000Z"),
		}
		if m, err := ReadManifest(path); err == nil {
			ai.Timestamp = m.Timestamp
			ai.Players = m.Players
			ai.Channels = m.Channels
		}
		out = append(out, ai)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp != out[j].Timestamp {
			return out[i].Timestamp > out[j].Timestamp
		}
		return out[i].Filename > out[j].Filename
	})
	return out, nil
}

// Prune deletes all but the newest keep archives and returns how many were removed.
func Prune(dir string, keep int) (int, error) {
	list, err := ListArchives(dir)
	if err != nil {
		return 0, err
	}
	removed := 0
	for i := keep; i < len(list); i++ {
		if err := os.Remove(list[i].Path); err != nil {
			return removed, fmt.Errorf("archive: prune %s: %w", list[i].Filename, err)
		}
		removed++
	}
	return removed, nil
}

// ReadManifest extracts manifest.json from an archive.
func ReadManifest(path string) (*Manifest, error) {
	var m *Manifest
	err := walk(path, func(hdr *tar.Header, r io.Reader) error {
		if hdr.Name != manifestName {
			return nil
		}
		data, err := io.ReadAll(r)
		if err != nil {
			return err
		}
		m = &Manifest{}
		return json.Unmarshal(data, m)
	})
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, errors.New("archive: manifest.json not found")
	}
	return m, nil
}

// Verify checks every file listed in the manifest against its checksum.
func Verify(path string) (*Manifest, error) {
	m, err := ReadManifest(path)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(m.Files))
	err = walk(path, func(hdr *tar.Header, r io.Reader) error {
		want, ok := m.Files[hdr.Name]
		if !ok {
			return nil
		}
		h := sha256.New()
		n, err := io.Copy(h, r)
		if err != nil {
			return err
		}
		if n != want.Size || hex.EncodeToString(h.Sum(nil)) != want.SHA256 {
			return fmt.Errorf("archive: %s: checksum mismatch", hdr.Name)
		}
		seen[hdr.Name] = true
		return nil
	})
	if err != nil {
		return m, err
	}
	for name := range m.Files {
		if !seen[name] {
			return m, fmt.Errorf("archive: %s: listed in manifest but missing", name)
		}
	}
	return m, nil
}

func walk(path string, fn func(*tar.Header, io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	gr, err := gzip.NewReader(f)
	if err != nil {
		return err
	}
	defer gr.Close()
	tr := tar.NewReader(gr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(hdr, tr); err != nil {
			return err
		}
	}
}
