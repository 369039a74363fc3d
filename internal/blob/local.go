package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore はローカルファイルシステムに保存するStore。
// 開発環境とテストで使う。
type LocalStore struct {
	root string
}

// NewLocalStore はrootディレクトリを作成してLocalStoreを返す。
func NewLocalStore(root string) (*LocalStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("保存先ディレクトリの解決に失敗しました: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("保存先ディレクトリの作成に失敗しました: %w", err)
	}
	return &LocalStore{root: abs}, nil
}

// path はkeyをroot配下の絶対パスに変換する。root外を指すキーは拒否する。
func (s *LocalStore) path(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid blob key: %q", key)
	}
	p := filepath.Join(s.root, filepath.FromSlash(key))
	if !strings.HasPrefix(p, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid blob key: %q", key)
	}
	return p, nil
}

// Upload は一時ファイルに書き込んでからリネームする。
func (s *LocalStore) Upload(ctx context.Context, key string, r io.Reader, size int64, _ string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return fmt.Errorf("保存先ディレクトリの作成に失敗しました: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(p), ".upload-*")
	if err != nil {
		return fmt.Errorf("一時ファイルの作成に失敗しました: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: r})
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("音声ファイルの書き込みに失敗しました: %w", err)
	}
	if size >= 0 && n != size {
		return fmt.Errorf("size mismatch: wrote %d bytes, expected %d", n, size)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("音声ファイルの保存に失敗しました: %w", err)
	}
	return nil
}

// Open はkeyのファイルを開く。
func (s *LocalStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("音声ファイルの読み込みに失敗しました: %w", err)
	}
	return f, nil
}

// Delete はkeyのファイルを削除する。
func (s *LocalStore) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("音声ファイルの削除に失敗しました: %w", err)
	}
	return nil
}

// ctxReader はctxのキャンセルで読み込みを打ち切る。
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// compile-time interface check
var _ Store = (*LocalStore)(nil)
