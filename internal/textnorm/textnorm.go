// Package textnorm はソース由来の文字列を正規化するヘルパーを提供する。
// すべての関数は全域関数であり、エラーを返さない。
package textnorm

import (
	"crypto/md5"
	"encoding/hex"
	"html"
	"net/url"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/Stratos888/Bocholt-Erleben/internal/security"
)

var stripper = security.NewTextStripper()

var nonSlugRe = regexp.MustCompile(`[^a-z0-9]+`)

// spaceBeforePunctRe はタグ除去で句読点の前に残った空白に一致する。
var spaceBeforePunctRe = regexp.MustCompile(`\s+([.,;:!?)])`)

var umlautReplacer = strings.NewReplacer("ä", "ae", "ö", "oe", "ü", "ue", "ß", "ss")

// trackingParams はCanonicalizeURLで除去するクエリキー。
var trackingParams = map[string]bool{
	"fbclid": true,
	"gclid":  true,
	"yclid":  true,
	"mc_cid": true,
	"mc_eid": true,
	"ref":    true,
	"source": true,
	"v":      true,
}

// NormalizeText はノーブレークスペースを通常の空白にし、NFC正規化して前後の空白を除去する。
func NormalizeText(s string) string {
	if s == "" {
		return ""
	}
	s = strings.NewReplacer("\u00a0", " ", "\u202f", " ").Replace(s)
	return strings.TrimSpace(norm.NFC.String(s))
}

// CollapseSpace は空白の連続を1つの空白にまとめ、前後を除去する。
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormKey は比較用キーとして空白をまとめて小文字化する。
func NormKey(s string) string {
	return strings.ToLower(CollapseSpace(s))
}

// CleanText はタグを除去し、HTMLエンティティをデコードして空白をまとめる。
// 結果が変化しなくなるまで繰り返すため、CleanText(CleanText(s)) == CleanText(s) となる。
// 各ラウンドはエスケープを1段ずつ外すため、反復回数は入力長で抑えられる。
func CleanText(s string) string {
	cur := s
	for i := 0; i <= len(s); i++ {
		next := cleanOnce(cur)
		if next == cur {
			return next
		}
		cur = next
	}
	return cur
}

func cleanOnce(s string) string {
	s = NormalizeText(s)
	if s == "" {
		return ""
	}
	if strings.ContainsAny(s, "<&") {
		s = stripper.Strip(s)
		s = html.UnescapeString(s)
	}
	s = CollapseSpace(NormalizeText(s))
	return spaceBeforePunctRe.ReplaceAllString(s, "$1")
}

// Slugify は小文字化とウムラウトの置換を行い、[a-z0-9]以外の連続をハイフン1つにする。
// 出力は常に ^[a-z0-9-]*$ に一致し、先頭・末尾・連続のハイフンを含まない。
func Slugify(s string) string {
	s = NormKey(NormalizeText(s))
	s = umlautReplacer.Replace(s)
	s = nonSlugRe.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// CanonicalizeURL はフラグメントとトラッキング用クエリを除去し、スキームとホストを小文字にする。
// 空文字や解析できないURLには空文字を返す。
func CanonicalizeURL(raw string) string {
	raw = NormalizeText(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	u.Fragment = ""
	u.RawFragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.RawQuery != "" {
		var kept []string
		for _, pair := range strings.Split(u.RawQuery, "&") {
			if pair == "" {
				continue
			}
			key := pair
			if i := strings.IndexAny(pair, "="); i >= 0 {
				key = pair[:i]
			}
			if k, err := url.QueryUnescape(key); err == nil {
				key = k
			}
			lk := strings.ToLower(key)
			if strings.HasPrefix(lk, "utm_") || trackingParams[lk] {
				continue
			}
			kept = append(kept, pair)
		}
		u.RawQuery = strings.Join(kept, "&")
	}
	u.ForceQuery = false

	return u.String()
}

// ResolveURL はhrefをbaseURL基準の絶対URLに解決し、正規化して返す。
// 解決できない場合は空文字を返す。
func ResolveURL(href, baseURL string) string {
	href = NormalizeText(href)
	if href == "" {
		return ""
	}
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return CanonicalizeURL(href)
	}
	if strings.HasPrefix(lower, "mailto:") || strings.HasPrefix(lower, "tel:") || strings.HasPrefix(lower, "javascript:") {
		return ""
	}
	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return CanonicalizeURL(href)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return CanonicalizeURL(base.ResolveReference(ref).String())
}

// ShortHash はMD5の16進表記の先頭n文字を返す。
func ShortHash(s string, n int) string {
	sum := md5.Sum([]byte(s))
	h := hex.EncodeToString(sum[:])
	if n <= 0 || n > len(h) {
		return h
	}
	return h[:n]
}

// MakeIDSuggestion は <slug(title)[:60]>-<yyyymmdd>-<hash4> 形式の決定的なIDを生成する。
func MakeIDSuggestion(title, date, timeStr, sourceURL string) string {
	st := Slugify(title)
	if st == "" {
		st = "event"
	}

	ymd := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, date)
	if len(ymd) != 8 {
		ymd = "00000000"
	}

	key := NormKey(CanonicalizeURL(sourceURL)) + "|" + st + "|" + strings.TrimSpace(date) + "|" + strings.TrimSpace(timeStr)
	if len(st) > 60 {
		st = st[:60]
	}
	return st + "-" + ymd + "-" + ShortHash(key, 4)
}

// Truncate は文字数（rune単位）でsを切り詰める。
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
