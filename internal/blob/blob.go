// Package blob は音声ファイルのオブジェクトストレージを提供する。
package blob

import (
	"context"
	"errors"
	"io"
	"path"
	"regexp"
	"strings"
	"time"
)

// ErrNotFound は指定キーのオブジェクトが存在しないことを表す。
var ErrNotFound = errors.New("blob not found")

// Store は音声オブジェクトの保存先。
type Store interface {
	// Upload はrからsizeバイトを読み、keyに保存する。
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// Open はkeyのオブジェクトを読み出す。存在しない場合はErrNotFoundを返す。
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete はkeyのオブジェクトを削除する。存在しない場合も成功とする。
	Delete(ctx context.Context, key string) error
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// maxNameLength はキーに含める元ファイル名の最大長。
const maxNameLength = 64

// SanitizeName はファイル名をキーに使える文字のみに置き換える。
func SanitizeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, `\`, "/"))
	name = unsafeNameChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if len(name) > maxNameLength {
		name = name[len(name)-maxNameLength:]
	}
	if name == "" {
		return "audio.wav"
	}
	return name
}

// UserKey はユーザーと用途で名前空間を分けたキーを返す。
// 形式: users/{userID}/{purpose}/{yyyymmddThhmmss.nnnZ}_{sanitizedName}
func UserKey(userID, purpose string, at time.Time, originalName string) string {
	ts := at.UTC().Format("20060102T150405.000Z")
	return path.Join("users", userID, purpose, ts+"_"+SanitizeName(originalName))
}
