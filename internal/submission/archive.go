package submission

import (
	"archive/zip"
	"compress/flate"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultArchiveName is used when the bundle name does not identify the lab
const DefaultArchiveName = "submit.zip"

// ArchiveName derives the submission name from the bundle: tests-lab03.zip becomes lab03.zip
func ArchiveName(bundlePath string) string {
	base := filepath.Base(bundlePath)
	if !strings.HasPrefix(base, "tests-") {
		return DefaultArchiveName
	}
	name := strings.SplitN(base, "-", 2)[1]
	if name == "" || name == ".zip" {
		return DefaultArchiveName
	}
	if !strings.HasSuffix(strings.ToLower(name), ".zip") {
		name += ".zip"
	}
	return name
}

// Builder creates submission archives from graded candidate sources
type Builder struct {
	outputDir string
}

// NewBuilder creates a new Builder writing archives into outputDir
func NewBuilder(outputDir string) *Builder {
	return &Builder{outputDir: outputDir}
}

// Build zips the given source files, stored under their base names, and
// returns the path of the archive.
func (b *Builder) Build(bundlePath string, sources []string) (string, error) {
	if len(sources) == 0 {
		return "", fmt.Errorf("no sources to submit")
	}

	unique := map[string]string{}
	for _, src := range sources {
		unique[filepath.Base(src)] = src
	}
	names := make([]string, 0, len(unique))
	for name := range unique {
		names = append(names, name)
	}
	sort.Strings(names)

	output := filepath.Join(b.outputDir, ArchiveName(bundlePath))
	f, err := os.Create(output)
	if err != nil {
		return "", fmt.Errorf("create submission archive: %w", err)
	}

	zw := zip.NewWriter(f)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestCompression)
	})

	for _, name := range names {
		if err := addFile(zw, name, unique[name]); err != nil {
			zw.Close()
			f.Close()
			os.Remove(output)
			return "", fmt.Errorf("add %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return "", fmt.Errorf("finish submission archive: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close submission archive: %w", err)
	}
	return output, nil
}

func addFile(zw *zip.Writer, name, path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	header.Name = name
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, in)
	return err
}
