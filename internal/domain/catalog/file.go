package catalog

import (
	"io"
	"os"
	"strings"

	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
)

type gzipFile struct {
	*pgzip.Reader
	f *os.File
}

func (g *gzipFile) Close() error {
	err := g.Reader.Close()
	if cerr := g.f.Close(); err == nil {
		err = cerr
	}
	return err
}

// OpenFeed opens a feed file for StreamFeed. Files ending in .gz are
// decompressed on the fly.
func OpenFeed(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	gz, err := pgzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, errors.Wrapf(err, "create gzip reader for %s", path)
	}
	return &gzipFile{Reader: gz, f: f}, nil
}

// LoadFile decodes every meal of the feed at path.
func LoadFile(path string) ([]Meal, error) {
	r, err := OpenFeed(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = r.Close() }()

	meals, err := DecodeFeed(r)
	if err != nil {
		return nil, errors.Wrapf(err, "decode %s", path)
	}
	return meals, nil
}
