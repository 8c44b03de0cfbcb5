package archive

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
)

type testEntry struct {
	hdr      tar.Header
	contents string
}

func buildArchive(t *testing.T, entries []testEntry) []byte {
	t.Helper()

	var buf bytes.Buffer

	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for _, ent := range entries {
		hdr := ent.hdr
		if hdr.Typeflag == tar.TypeReg {
			hdr.Size = int64(len(ent.contents))
		}
		if hdr.Mode == 0 {
			hdr.Mode = 0644
		}

		if err := tw.WriteHeader(&hdr); err != nil {
			t.Fatal(err)
		}

		if ent.contents != "" {
			if _, err := tw.Write([]byte(ent.contents)); err != nil {
				t.Fatal(err)
			}
		}
	}

	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}

	return buf.Bytes()
}

func readFile(t *testing.T, filename string) string {
	t.Helper()

	contents, err := os.ReadFile(filename)
	if err != nil {
		t.Fatal(err)
	}

	return string(contents)
}

func TestExtract(t *testing.T) {
	mtime := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	data := buildArchive(t, []testEntry{
		{hdr: tar.Header{Typeflag: tar.TypeDir, Name: "bin/", Mode: 0755}},
		{hdr: tar.Header{Typeflag: tar.TypeReg, Name: "bin/run", Mode: 0755, ModTime: mtime}, contents: "#!/bin/sh\n"},
		{hdr: tar.Header{Typeflag: tar.TypeReg, Name: "./app.js", ModTime: mtime}, contents: "console.log(1)"},
		{hdr: tar.Header{Typeflag: tar.TypeReg, Name: "deep/nested/file.txt"}, contents: "nested"},
	})

	dir := t.TempDir()

	if err := Extract(bytes.NewReader(data), dir, ExtractOptions{}); err != nil {
		t.Fatal(err)
	}

	if got := readFile(t, filepath.Join(dir, "app.js")); got != "console.log(1)" {
		t.Fatalf("app.js = %q", got)
	}
	if got := readFile(t, filepath.Join(dir, "deep", "nested", "file.txt")); got != "nested" {
		t.Fatalf("file.txt = %q", got)
	}

	info, err := os.Stat(filepath.Join(dir, "bin", "run"))
	if err != nil {
		t.Fatal(err)
	}
	if !info.ModTime().Equal(mtime) {
		t.Fatalf("mod time = %s want %s", info.ModTime(), mtime)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0100 == 0 {
		t.Fatalf("bin/run is not executable: %s", info.Mode())
	}
}

func TestExtractWithProgress(t *testing.T) {
	data := buildArchive(t, []testEntry{
		{hdr: tar.Header{Typeflag: tar.TypeReg, Name: "a.txt"}, contents: "a"},
	})

	var progress bytes.Buffer

	if err := Extract(bytes.NewReader(data), t.TempDir(), ExtractOptions{
		Progress: &progress,
		Size:     int64(len(data)),
	}); err != nil {
		t.Fatal(err)
	}
}

func TestExtractSymlinks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}

	data := buildArchive(t, []testEntry{
		{hdr: tar.Header{Typeflag: tar.TypeReg, Name: "lib/real.txt"}, contents: "real"},
		{hdr: tar.Header{Typeflag: tar.TypeSymlink, Name: "lib/alias.txt", Linkname: "real.txt"}},
		{hdr: tar.Header{Typeflag: tar.TypeLink, Name: "hard.txt", Linkname: "lib/real.txt"}},
	})

	dir := t.TempDir()

	if err := Extract(bytes.NewReader(data), dir, ExtractOptions{}); err != nil {
		t.Fatal(err)
	}

	if got := readFile(t, filepath.Join(dir, "lib", "alias.txt")); got != "real" {
		t.Fatalf("alias.txt = %q", got)
	}
	if got := readFile(t, filepath.Join(dir, "hard.txt")); got != "real" {
		t.Fatalf("hard.txt = %q", got)
	}
}

func TestExtractRejectsEscapes(t *testing.T) {
	for name, ents := range map[string][]testEntry{
		"parent":        {{hdr: tar.Header{Typeflag: tar.TypeReg, Name: "../evil"}, contents: "x"}},
		"nested parent": {{hdr: tar.Header{Typeflag: tar.TypeReg, Name: "a/../../evil"}, contents: "x"}},
		"absolute":      {{hdr: tar.Header{Typeflag: tar.TypeReg, Name: "/evil"}, contents: "x"}},
		"symlink":       {{hdr: tar.Header{Typeflag: tar.TypeSymlink, Name: "a/link", Linkname: "../../etc"}}},
		"abs symlink":   {{hdr: tar.Header{Typeflag: tar.TypeSymlink, Name: "link", Linkname: "/etc/passwd"}}},
		"hard link":     {{hdr: tar.Header{Typeflag: tar.TypeLink, Name: "link", Linkname: "../outside"}}},
		"symlink chain": {
			{hdr: tar.Header{Typeflag: tar.TypeSymlink, Name: "a", Linkname: "."}},
			{hdr: tar.Header{Typeflag: tar.TypeSymlink, Name: "a/b", Linkname: ".."}},
			{hdr: tar.Header{Typeflag: tar.TypeReg, Name: "a/b/evil"}, contents: "x"},
		},
		"parent through link": {
			{hdr: tar.Header{Typeflag: tar.TypeSymlink, Name: "d", Linkname: "."}},
			{hdr: tar.Header{Typeflag: tar.TypeSymlink, Name: "up", Linkname: "d/.."}},
			{hdr: tar.Header{Typeflag: tar.TypeReg, Name: "up/evil"}, contents: "x"},
		},
	} {
		parent := t.TempDir()
		dir := filepath.Join(parent, "root")
		if err := os.Mkdir(dir, 0755); err != nil {
			t.Fatal(err)
		}

		data := buildArchive(t, ents)

		if err := Extract(bytes.NewReader(data), dir, ExtractOptions{}); err == nil {
			t.Fatalf("%s: expected error", name)
		}

		if got, _ := os.ReadDir(parent); len(got) != 1 {
			t.Fatalf("%s: archive wrote outside the extraction directory: %v", name, got)
		}
	}
}

func TestExtractRejectsDevices(t *testing.T) {
	data := buildArchive(t, []testEntry{
		{hdr: tar.Header{Typeflag: tar.TypeChar, Name: "dev/null", Devmajor: 1, Devminor: 3}},
	})

	if err := Extract(bytes.NewReader(data), t.TempDir(), ExtractOptions{}); err == nil {
		t.Fatal("expected error for character device")
	}
}

func TestEnsureExtractedOnce(t *testing.T) {
	data := buildArchive(t, []testEntry{
		{hdr: tar.Header{Typeflag: tar.TypeReg, Name: "bin/run", Mode: 0755}, contents: "run"},
		{hdr: tar.Header{Typeflag: tar.TypeReg, Name: "app.js"}, contents: "app"},
	})

	dir := filepath.Join(t.TempDir(), "tmp", "appid")

	extracted, err := EnsureExtracted(data, dir, ExtractOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !extracted {
		t.Fatal("first call did not extract")
	}

	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(ents) != 2 {
		t.Fatalf("expected exactly bin and app.js, got %v", ents)
	}

	before, err := os.Stat(filepath.Join(dir, "app.js"))
	if err != nil {
		t.Fatal(err)
	}

	extracted, err = EnsureExtracted(data, dir, ExtractOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if extracted {
		t.Fatal("second call extracted again")
	}

	after, err := os.Stat(filepath.Join(dir, "app.js"))
	if err != nil {
		t.Fatal(err)
	}
	if !after.ModTime().Equal(before.ModTime()) {
		t.Fatal("second call modified app.js")
	}

	staging, err := filepath.Glob(StagingPattern(dir))
	if err != nil {
		t.Fatal(err)
	}
	if len(staging) != 0 {
		t.Fatalf("staging directories left behind: %v", staging)
	}
}

func TestEnsureExtractedTrustsExistingDir(t *testing.T) {
	data := buildArchive(t, []testEntry{
		{hdr: tar.Header{Typeflag: tar.TypeReg, Name: "app.js"}, contents: "app"},
	})

	dir := t.TempDir()

	extracted, err := EnsureExtracted(data, dir, ExtractOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if extracted {
		t.Fatal("extracted into an existing directory")
	}

	if _, err := os.Stat(filepath.Join(dir, "app.js")); !os.IsNotExist(err) {
		t.Fatalf("expected app.js to be absent, got %v", err)
	}
}

func TestEnsureExtractedLosesRace(t *testing.T) {
	data := buildArchive(t, []testEntry{
		{hdr: tar.Header{Typeflag: tar.TypeReg, Name: "app.js"}, contents: "loser"},
	})

	dir := filepath.Join(t.TempDir(), "appid")

	// Another launch finishes its rename while this one is still extracting.
	t.Cleanup(func() { renameStaging = os.Rename })
	renameStaging = func(staging string, target string) error {
		if err := os.Mkdir(target, 0755); err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(target, "winner.js"), []byte("winner"), 0644); err != nil {
			return err
		}
		return os.Rename(staging, target)
	}

	extracted, err := EnsureExtracted(data, dir, ExtractOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if extracted {
		t.Fatal("losing launch reported an extraction")
	}

	if got := readFile(t, filepath.Join(dir, "winner.js")); got != "winner" {
		t.Fatalf("winner contents changed: %q", got)
	}
	if _, err := os.Stat(filepath.Join(dir, "app.js")); !os.IsNotExist(err) {
		t.Fatalf("loser contents leaked into the target: %v", err)
	}

	staging, err := filepath.Glob(StagingPattern(dir))
	if err != nil {
		t.Fatal(err)
	}
	if len(staging) != 0 {
		t.Fatalf("staging directories left behind: %v", staging)
	}
}

func TestEnsureExtractedCorrupt(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "appid")

	if _, err := EnsureExtracted([]byte("definitely not gzip"), dir, ExtractOptions{}); err == nil {
		t.Fatal("expected error for corrupt archive")
	}

	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("target created after failed extraction: %v", err)
	}

	staging, err := filepath.Glob(StagingPattern(dir))
	if err != nil {
		t.Fatal(err)
	}
	if len(staging) != 0 {
		t.Fatalf("staging directories left behind: %v", staging)
	}
}

func TestCreateRoundTrip(t *testing.T) {
	root := t.TempDir()

	if err := os.MkdirAll(filepath.Join(root, "src"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "bundle"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "src", "index.js"), []byte("index"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "bundle", "old.tar.gz"), []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := Create(&buf, root, func(rel string) bool { return rel == "bundle" }); err != nil {
		t.Fatal(err)
	}

	out := t.TempDir()
	if err := Extract(&buf, out, ExtractOptions{}); err != nil {
		t.Fatal(err)
	}

	if got := readFile(t, filepath.Join(out, "src", "index.js")); got != "index" {
		t.Fatalf("index.js = %q", got)
	}

	if _, err := os.Stat(filepath.Join(out, "bundle")); !os.IsNotExist(err) {
		t.Fatalf("excluded directory was archived: %v", err)
	}
}
