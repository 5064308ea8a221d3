package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/TheusHen/parley/parley/store/erasure"
)

// File keeps each blob in its own file under a directory, wrapped in an
// erasure envelope. Damaged files are repaired on Load.
type File struct {
	dir   string
	codec *erasure.Codec
	log   zerolog.Logger
}

type FileOption func(*File)

func WithFileLogger(log zerolog.Logger) FileOption { return func(f *File) { f.log = log } }

// NewFile creates dir if needed.
func NewFile(dir string, opts ...FileOption) (*File, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	codec, err := erasure.NewCodec(erasure.DefaultDataShards, erasure.DefaultParityShards)
	if err != nil {
		return nil, err
	}
	f := &File{dir: dir, codec: codec, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func (f *File) path(name string) string { return filepath.Join(f.dir, name+".blob") }

func (f *File) Save(ctx context.Context, name string, blob []byte) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	env, err := f.codec.Encode(blob)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", name, err)
	}
	return f.write(name, env)
}

func (f *File) write(name string, env []byte) error {
	tmp, err := os.CreateTemp(f.dir, "."+name+".*")
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(env); err != nil {
		tmp.Close()
		return fmt.Errorf("store: write %s: %w", name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("store: sync %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path(name)); err != nil {
		return fmt.Errorf("store: commit %s: %w", name, err)
	}
	return nil
}

func (f *File) Load(ctx context.Context, name string) ([]byte, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	env, err := os.ReadFile(f.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", name, err)
	}
	blob, repaired, err := f.codec.Decode(env)
	if err != nil {
		return nil, fmt.Errorf("store: decode %s: %w", name, err)
	}
	if repaired > 0 {
		f.log.Warn().Str("blob", name).Int("shards", repaired).Msg("repaired damaged blob")
		if err := f.Save(ctx, name, blob); err != nil {
			f.log.Error().Err(err).Str("blob", name).Msg("rewrite after repair failed")
		}
	}
	return blob, nil
}

var (
	_ BlobStore = (*File)(nil)
	_ BlobStore = (*Memory)(nil)
)
