// Package dedupe は候補が公開済み・Inbox登録済みかを判定し、
// 登録済みの行に不足している項目の補完を組み立てる。
//
// 同一性判定は次の順に行う。
//  1. 公開済みイベントの正規化URL（一致度1.0）
//  2. 公開済みイベントの (slug(title), date)（一致度0.95）
//  3. Inbox行のフィンガープリント (source_url, slug(title), date または url)
//  4. Inbox行の (slug(title), date)。別ソースから同じイベントが来た場合
//  5. Inbox行の (source_url, slug(title), url)。日付のない既存行に日付を補う場合
package dedupe

import (
	"strings"

	"github.com/Stratos888/Bocholt-Erleben/internal/textnorm"
)

// Fingerprint はInbox行の同一性を表す3つ組。
// 3つ目の要素は日付があれば日付、なければ候補URLの正規化キー。
type Fingerprint struct {
	Source string
	Slug   string
	Third  string
}

// NewFingerprint は候補のフィンガープリントを作る。
func NewFingerprint(sourceURL, title, date, candidateURL string) Fingerprint {
	return Fingerprint{
		Source: urlKey(sourceURL),
		Slug:   textnorm.Slugify(title),
		Third:  thirdKey(date, candidateURL),
	}
}

// Key はマップのキーに使う文字列を返す。
func (f Fingerprint) Key() string {
	return f.Source + "|" + f.Slug + "|" + f.Third
}

func thirdKey(date, candidateURL string) string {
	if d := strings.TrimSpace(date); d != "" {
		return d
	}
	return urlKey(candidateURL)
}

// urlKey は比較用に正規化したURLを返す。
func urlKey(rawURL string) string {
	return textnorm.NormKey(textnorm.CanonicalizeURL(rawURL))
}

func slugDateKey(title, date string) string {
	slug, date := textnorm.Slugify(title), strings.TrimSpace(date)
	if slug == "" || date == "" {
		return ""
	}
	return slug + "|" + date
}
