// Package audio は取り込んだ音声を認識サービス向けの形式に正規化する。
package audio

import (
	"fmt"
	"os"
	"path/filepath"
)

// WorkspacePrefix は作業ディレクトリ名の接頭辞。掃除ジョブはこの接頭辞で対象を判定する。
const WorkspacePrefix = "vocalearn-audio-"

// Workspace は1リクエスト分の一時作業ディレクトリ。
// 取得直後に defer ws.Close() し、どの経路でも削除されるようにする。
type Workspace struct {
	dir string
}

// NewWorkspace はbaseDir配下に作業ディレクトリを作成する。baseDirが空の場合はOSの一時ディレクトリを使う。
func NewWorkspace(baseDir string) (*Workspace, error) {
	dir, err := os.MkdirTemp(baseDir, WorkspacePrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("作業ディレクトリの作成に失敗しました: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

// Dir は作業ディレクトリのパスを返す。
func (w *Workspace) Dir() string {
	return w.dir
}

// Path は作業ディレクトリ内のファイルパスを返す。
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, filepath.Base(name))
}

// Close は作業ディレクトリを中身ごと削除する。複数回呼んでもよい。
func (w *Workspace) Close() error {
	if w == nil || w.dir == "" {
		return nil
	}
	err := os.RemoveAll(w.dir)
	w.dir = ""
	return err
}
