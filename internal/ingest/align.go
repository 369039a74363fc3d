package ingest

import (
	"math"

	"github.com/hitoshi/vocalearn/internal/model"
)

// OpTag は編集スクリプトの操作種別。
type OpTag string

const (
	OpEqual   OpTag = "equal"
	OpInsert  OpTag = "insert"
	OpDelete  OpTag = "delete"
	OpReplace OpTag = "replace"
)

// Opcode は a[I1:I2] を b[J1:J2] に変換する操作。
type Opcode struct {
	Tag    OpTag
	I1, I2 int
	J1, J2 int
}

// Opcodes は最長共通部分列に基づいてaをbに変換する編集スクリプトを返す。
// 隣接する削除と挿入はreplaceにまとめる。
func Opcodes(a, b []string) []Opcode {
	n, m := len(a), len(b)
	// lcs[i][j] は a[i:] と b[j:] の最長共通部分列の長さ
	lcs := make([][]int, n+1)
	for i := range lcs {
		lcs[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else {
				lcs[i][j] = max(lcs[i+1][j], lcs[i][j+1])
			}
		}
	}

	var ops []Opcode
	i, j := 0, 0
	pi, pj := 0, 0 // 未確定の差分区間の開始位置

	flush := func() {
		switch {
		case pi < i && pj < j:
			ops = append(ops, Opcode{OpReplace, pi, i, pj, j})
		case pi < i:
			ops = append(ops, Opcode{OpDelete, pi, i, pj, j})
		case pj < j:
			ops = append(ops, Opcode{OpInsert, pi, i, pj, j})
		}
	}

	for i < n || j < m {
		if i < n && j < m && a[i] == b[j] {
			flush()
			ei, ej := i, j
			for i < n && j < m && a[i] == b[j] {
				i++
				j++
			}
			ops = append(ops, Opcode{OpEqual, ei, i, ej, j})
			pi, pj = i, j
			continue
		}
		if j >= m || (i < n && lcs[i+1][j] >= lcs[i][j+1]) {
			i++
		} else {
			j++
		}
	}
	flush()
	return ops
}

// Align は参照単語列と認識単語列を突き合わせ、最終的な単語評価を返す。
// 参照にない認識語のうちエラーなしのものはInsertionに付け替え、
// 認識されなかった参照語は精度0のOmissionとして補う。
// 誤り種別が空の認識語はエラーなしとして扱う。
func Align(reference []string, recognized []model.WordAssessment) []model.WordAssessment {
	recognized = append([]model.WordAssessment(nil), recognized...)
	keys := make([]string, len(recognized))
	for i, w := range recognized {
		if w.ErrorType == "" {
			recognized[i].ErrorType = model.WordErrorNone
		}
		keys[i] = NormalizeWord(w.Word)
	}

	words := make([]model.WordAssessment, 0, len(reference)+len(recognized))
	for _, op := range Opcodes(reference, keys) {
		if op.Tag == OpInsert || op.Tag == OpReplace {
			for _, w := range recognized[op.J1:op.J2] {
				if w.ErrorType == model.WordErrorNone {
					w.ErrorType = model.WordErrorInsertion
				}
				words = append(words, w)
			}
		}
		if op.Tag == OpDelete || op.Tag == OpReplace {
			for _, ref := range reference[op.I1:op.I2] {
				words = append(words, model.WordAssessment{
					Word:      ref,
					Accuracy:  0,
					ErrorType: model.WordErrorOmission,
				})
			}
		}
		if op.Tag == OpEqual {
			words = append(words, recognized[op.J1:op.J2]...)
		}
	}
	return words
}

// Segment は発音評価の確定区間1つ分。
type Segment struct {
	Words   []model.WordAssessment
	Fluency float64
	Prosody *float64
	// DurationMs は区間の長さ。単語の長さの合計が取れない場合の重みに使う。
	DurationMs int64
}

// weight は流暢さの加重平均に使う重みを返す。単語の長さの合計を優先する。
func (s Segment) weight() float64 {
	var total int64
	for _, w := range s.Words {
		total += w.DurationMs
	}
	if total <= 0 {
		total = s.DurationMs
	}
	return float64(total)
}

// Score は発音評価の集計結果。
type Score struct {
	Accuracy     float64
	Fluency      float64
	Completeness float64
	Prosody      *float64
	Words        []model.WordAssessment
}

// ScoreAssessment は参照単語列と確定区間から集計スコアを計算する。
//   - accuracy: Insertion以外の全単語（Omissionの0を含む）の精度の平均
//   - fluency: 区間ごとの流暢さの、区間の長さによる加重平均
//   - completeness: エラーなしで認識された単語数 / 参照単語数 ×100（上限100）
//   - prosody: 区間ごとの韻律の平均。一度も報告されなければnil
func ScoreAssessment(reference []string, segments []Segment) Score {
	var recognized []model.WordAssessment
	for _, s := range segments {
		recognized = append(recognized, s.Words...)
	}
	words := Align(reference, recognized)

	var accSum float64
	var accN, correct int
	for _, w := range words {
		if w.ErrorType == model.WordErrorInsertion {
			continue
		}
		accSum += w.Accuracy
		accN++
		if w.ErrorType == model.WordErrorNone {
			correct++
		}
	}

	score := Score{Words: words}
	if accN > 0 {
		score.Accuracy = clampScore(accSum / float64(accN))
	}
	if len(reference) > 0 {
		score.Completeness = clampScore(float64(correct) / float64(len(reference)) * 100)
	}

	var fluencySum, weightSum, plainSum float64
	var prosodySum float64
	var prosodyN int
	for _, s := range segments {
		wt := s.weight()
		fluencySum += s.Fluency * wt
		weightSum += wt
		plainSum += s.Fluency
		if s.Prosody != nil {
			prosodySum += *s.Prosody
			prosodyN++
		}
	}
	switch {
	case weightSum > 0:
		score.Fluency = clampScore(fluencySum / weightSum)
	case len(segments) > 0:
		score.Fluency = clampScore(plainSum / float64(len(segments)))
	}
	if prosodyN > 0 {
		p := clampScore(prosodySum / float64(prosodyN))
		score.Prosody = &p
	}
	return score
}

// clampScore は0から100の範囲に丸め、小数第2位で四捨五入する。
func clampScore(v float64) float64 {
	v = math.Max(0, math.Min(100, v))
	return math.Round(v*100) / 100
}
