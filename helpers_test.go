// Copyright IBM Corp. 2023, 2025
// SPDX-License-Identifier: MPL-2.0

package safearchive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"compress/gzip"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

// archiveContent describes a member of a test archive
type archiveContent struct {
	name       string
	content    []byte
	mode       fs.FileMode
	fileType   byte
	linktarget string
}

// file returns a regular file member
func file(name, content string) archiveContent {
	return archiveContent{name: name, content: []byte(content), mode: 0644, fileType: tar.TypeReg}
}

// dir returns a directory member
func dir(name string) archiveContent {
	return archiveContent{name: name, mode: 0755 | fs.ModeDir, fileType: tar.TypeDir}
}

// symlink returns a symlink member
func symlink(name, target string) archiveContent {
	return archiveContent{name: name, mode: 0777 | fs.ModeSymlink, fileType: tar.TypeSymlink, linktarget: target}
}

// packTar creates a tar archive with the given content
func packTar(t *testing.T, content []archiveContent) []byte {
	t.Helper()

	buf := &bytes.Buffer{}
	tw := tar.NewWriter(buf)
	for _, c := range content {
		hdr := &tar.Header{
			Name:     c.name,
			Mode:     int64(c.mode.Perm()),
			Size:     int64(len(c.content)),
			Linkname: c.linktarget,
			Typeflag: c.fileType,
		}
		if c.fileType != tar.TypeReg {
			hdr.Size = 0
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("error writing tar header: %v", err)
		}
		if hdr.Size > 0 {
			if _, err := tw.Write(c.content); err != nil {
				t.Fatalf("error writing tar data: %v", err)
			}
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("error closing tar writer: %v", err)
	}
	return buf.Bytes()
}

// gzipData compresses data
func gzipData(t *testing.T, data []byte) []byte {
	t.Helper()

	buf := &bytes.Buffer{}
	gw := gzip.NewWriter(buf)
	if _, err := gw.Write(data); err != nil {
		t.Fatalf("error writing gzip data: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("error closing gzip writer: %v", err)
	}
	return buf.Bytes()
}

// packTarGz creates a gzip compressed tar archive with the given content
func packTarGz(t *testing.T, content []archiveContent) []byte {
	t.Helper()
	return gzipData(t, packTar(t, content))
}

// packZip creates a zip archive with the given content
func packZip(t *testing.T, content []archiveContent) []byte {
	t.Helper()

	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	for _, c := range content {
		hdr := &zip.FileHeader{Name: c.name, Method: zip.Deflate}
		hdr.SetMode(c.mode)
		if c.mode.IsDir() {
			hdr.Method = zip.Store
		}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			t.Fatalf("error creating zip entry: %v", err)
		}
		data := c.content
		if c.mode&fs.ModeSymlink != 0 {
			data = []byte(c.linktarget)
		}
		if _, err := w.Write(data); err != nil {
			t.Fatalf("error writing zip data: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("error closing zip writer: %v", err)
	}
	return buf.Bytes()
}

// packZipBomb creates a zip archive with a single stored entry that declares
// declaredSize bytes but holds only payload
func packZipBomb(t *testing.T, name string, payload []byte, declaredSize uint64) []byte {
	t.Helper()

	buf := &bytes.Buffer{}
	zw := zip.NewWriter(buf)
	w, err := zw.CreateRaw(&zip.FileHeader{
		Name:               name,
		Method:             zip.Store,
		CompressedSize64:   uint64(len(payload)),
		UncompressedSize64: declaredSize,
	})
	if err != nil {
		t.Fatalf("error creating raw zip entry: %v", err)
	}
	if _, err := w.Write(payload); err != nil {
		t.Fatalf("error writing raw zip data: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("error closing zip writer: %v", err)
	}
	return buf.Bytes()
}

// writeArchive stores data as name in a new temporary directory
func writeArchive(t *testing.T, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("error writing archive: %v", err)
	}
	return path
}

// listFiles returns all non directory paths below root, relative to root
func listFiles(t *testing.T, root string) []string {
	t.Helper()

	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		t.Fatalf("error listing files: %v", err)
	}
	return files
}
