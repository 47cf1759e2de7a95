// Package archive bundles the chat server's databases and configuration into
// a single .tar.gz with a checksummed manifest.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Manifest describes the contents of an archive.
type Manifest struct {
	Version   int                  `json:"version"`
	Server    string               `json:"server"`
	Timestamp string               `json:"timestamp"`
	Players   int                  `json:"players"`
	Channels  int                  `json:"channels"`
	Files     map[string]FileEntry `json:"files"`
}

// FileEntry describes a single file within the archive.
type FileEntry struct {
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
	Type   string `json:"type"` // "state", "economy", "channel", "conf"
}

// Params holds the inputs for CreateArchive. Empty paths are skipped.
type Params struct {
	StateSnapshot     func(destPath string) error // writes a consistent copy of the state database
	EconomyPath       string
	EconomyCheckpoint func() error // flushes the WAL before the copy
	ChannelsDir       string
	ConfFiles         []string
	ArchiveDir        string
	Server            string
	Players           int
	Channels          int
	Keep              int // archives retained after this one; 0 keeps all
}

// CreateArchive writes a new archive into ArchiveDir and returns its path.
func CreateArchive(p Params) (string, error) {
	if err := os.MkdirAll(p.ArchiveDir, 0755); err != nil {
		return "", fmt.Errorf("archive: create dir %s: %w", p.ArchiveDir, err)
	}
	now := time.Now()
	archivePath := filepath.Join(p.ArchiveDir, fmt.Sprintf("nightchat-%s.tar.gz", now.Format("20060102-150405.000")))

	tmpDir, err := os.MkdirTemp("", "nightchat-archive-*")
	if err != nil {
		return "", fmt.Errorf("archive: create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	m := Manifest{
		Version:   1,
		Server:    p.Server,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
		Players:   p.Players,
		Channels:  p.Channels,
		Files:     make(map[string]FileEntry),
	}

	type staged struct{ src, name, typ string }
	var files []staged

	if p.StateSnapshot != nil {
		dst := filepath.Join(tmpDir, "players.db")
		if err := p.StateSnapshot(dst); err != nil {
			return "", fmt.Errorf("archive: state snapshot: %w", err)
		}
		files = append(files, staged{dst, "data/players.db", "state"})
	}
	if p.EconomyPath != "" {
		if p.EconomyCheckpoint != nil {
			if err := p.EconomyCheckpoint(); err != nil {
				return "", fmt.Errorf("archive: economy checkpoint: %w", err)
			}
		}
		dst := filepath.Join(tmpDir, "economy.db")
		if err := copyFile(p.EconomyPath, dst); err != nil {
			return "", fmt.Errorf("archive: copy economy: %w", err)
		}
		files = append(files, staged{dst, "data/economy.db", "economy"})
	}
	for _, c := range p.ConfFiles {
		if _, err := os.Stat(c); err == nil {
			files = append(files, staged{c, "conf/" + filepath.Base(c), "conf"})
		}
	}

	out, err := os.Create(archivePath)
	if err != nil {
		return "", fmt.Errorf("archive: create %s: %w", archivePath, err)
	}
	gw := gzip.NewWriter(out)
	tw := tar.NewWriter(gw)

	err = func() error {
		for _, f := range files {
			entry, err := addFileToTar(tw, f.src, f.name)
			if err != nil {
				return err
			}
			entry.Type = f.typ
			m.Files[f.name] = entry
		}
		if p.ChannelsDir != "" {
			if info, err := os.Stat(p.ChannelsDir); err == nil && info.IsDir() {
				entries, err := addDirToTar(tw, p.ChannelsDir, "channels")
				if err != nil {
					return err
				}
				for k, v := range entries {
					v.Type = "channel"
					m.Files[k] = v
				}
			}
		}
		// The manifest goes last so it can describe everything before it.
		data, err := json.MarshalIndent(m, "", "  ")
		if err != nil {
			return fmt.Errorf("archive: marshal manifest: %w", err)
		}
		if err := tw.WriteHeader(&tar.Header{Name: manifestName, Size: int64(len(data)), Mode: 0644, ModTime: now}); err != nil {
			return fmt.Errorf("archive: write manifest header: %w", err)
		}
		if _, err := tw.Write(data); err != nil {
			return fmt.Errorf("archive: write manifest: %w", err)
		}
		if err := tw.Close(); err != nil {
			return err
		}
		if err := gw.Close(); err != nil {
			return err
		}
		return out.Close()
	}()
	if err != nil {
		out.Close()
		os.Remove(archivePath)
		return "", err
	}

	if p.Keep > 0 {
		if _, err := Prune(p.ArchiveDir, p.Keep); err != nil {
			return archivePath, err
		}
	}
	return archivePath, nil
}

const manifestName = "manifest.json"

// addFileToTar adds a single file to the tar archive with the given archive name,
// computing its SHA-256 while writing.
func addFileToTar(tw *tar.Writer, srcPath, archName string) (FileEntry, error) {
	f, err := os.Open(srcPath)
	if err != nil {
		return FileEntry{}, fmt.Errorf("archive: open %s: %w", srcPath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return FileEntry{}, fmt.Errorf("archive: stat %s: %w", srcPath, err)
	}
	archName = strings.ReplaceAll(archName, "\\", "/")
	if err := tw.WriteHeader(&tar.Header{
		Name:    archName,
		Size:    info.Size(),
		Mode:    0644,
		ModTime: info.ModTime(),
	}); err != nil {
		return FileEntry{}, fmt.Errorf("archive: header %s: %w", archName, err)
	}

	h := sha256.New()
	written, err := io.Copy(tw, io.TeeReader(f, h))
	if err != nil {
		return FileEntry{}, fmt.Errorf("archive: write %s: %w", archName, err)
	}
	return FileEntry{SHA256: hex.EncodeToString(h.Sum(nil)), Size: written}, nil
}

// addDirToTar adds the regular files directly inside srcDir.
func addDirToTar(tw *tar.Writer, srcDir, archPrefix string) (map[string]FileEntry, error) {
	entries := make(map[string]FileEntry)
	des, err := os.ReadDir(srcDir)
	if err != nil {
		return nil, fmt.Errorf("archive: read %s: %w", srcDir, err)
	}
	for _, de := range des {
		if !de.Type().IsRegular() {
			continue
		}
		name := archPrefix + "/" + de.Name()
		entry, err := addFileToTar(tw, filepath.Join(srcDir, de.Name()), name)
		if err != nil {
			return nil, err
		}
		entries[name] = entry
	}
	return entries, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
