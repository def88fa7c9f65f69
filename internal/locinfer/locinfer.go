// Package locinfer は構造化フィールドを持たないソースについて、
// タイトルと説明文から開催場所と時刻を推定する。
//
// 誤った推定より空欄を優先するため、判定は保守的に行う。
package locinfer

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/Stratos888/Bocholt-Erleben/internal/dateextract"
	"github.com/Stratos888/Bocholt-Erleben/internal/textnorm"
)

// OnlineLocation はオンライン開催の場所表記。
const OnlineLocation = "Online"

var (
	umUhrRe       = regexp.MustCompile(`(?i)\bum\s*(\d{1,2})(?:[:.](\d{2}))?\s*uhr\b`)
	slashSegRe    = regexp.MustCompile(`\s*//\s*`)
	labelRe       = regexp.MustCompile(`(?i)(?:^|[^\p{L}])(veranstaltungsort|treffpunkt|adresse|ort|wo)\s*:\s*([^\n|;]{2,160})`)
	nextLabelRe   = regexp.MustCompile(`(?i)\s+(?:zeit|datum|uhrzeit|eintritt|beginn|einlass|preis|kosten|veranstalter|anmeldung|info)\s*:`)
	prepRe        = regexp.MustCompile(`\b(im|in)\s+([A-ZÄÖÜ][^.,;:!?\n]{2,80})`)
	prepCutRe     = regexp.MustCompile(`\s+(?:am|um|ab|von|für|mit|bis)(?:\s|$)`)
	onlyDateishRe = regexp.MustCompile(`(?i)^[\d\s.:/–-]*(?:uhr)?$`)
)

// genericSegments はタイトル区切りの第2要素として場所とみなさない値。
var genericSegments = map[string]bool{
	"eintritt frei":          true,
	"kostenlos":              true,
	"ausverkauft":            true,
	"anmeldung erforderlich": true,
	"abgesagt":               true,
	"verschoben":             true,
}

// blockedPhraseStarts は "im X" / "in X" のうち場所ではない慣用句の先頭語。
var blockedPhraseStarts = map[string]bool{
	"rahmen": true, "kurs": true, "anschluss": true, "jahr": true, "monat": true,
	"vorfeld": true, "mittelpunkt": true, "fokus": true, "namen": true, "auftrag": true,
	"vordergrund": true, "kooperation": true, "zusammenarbeit": true, "form": true,
	"höhe": true, "kürze": true, "planung": true, "internet": true, "netz": true,
	"sommer": true, "winter": true, "frühjahr": true, "herbst": true, "advent": true,
	"januar": true, "februar": true, "märz": true, "april": true, "mai": true, "juni": true,
	"juli": true, "august": true, "september": true, "oktober": true, "november": true, "dezember": true,
	"deutsch": true, "englisch": true, "zukunft": true, "gedenken": true,
}

// Infer はタイトルと説明文から (場所, 時刻) を推定する。どちらも空になり得る。
func Infer(title, description string) (string, string) {
	t := textnorm.NormalizeText(title)
	d := textnorm.NormalizeText(description)
	tm := inferTime(t, d)

	if isOnline(t + " " + d) {
		return OnlineLocation, tm
	}

	loc := LocationFromTitle(t)
	if loc == "" {
		loc = LocationFromLabels(d)
	}
	if loc == "" {
		loc = LocationFromPreposition(d)
	}
	return loc, tm
}

// isOnline は "Onlinevortrag" のような複合語も含めて部分一致で判定する。
func isOnline(text string) bool {
	low := strings.ToLower(text)
	return strings.Contains(low, "online") || strings.Contains(low, "webinar")
}

func inferTime(title, desc string) string {
	for _, s := range []string{title, desc} {
		if m := umUhrRe.FindStringSubmatch(s); m != nil {
			minute := 0
			if m[2] != "" {
				minute = atoi(m[2])
			}
			if hm, ok := dateextract.FormatClock(atoi(m[1]), minute); ok {
				return hm
			}
		}
	}
	if tm := dateextract.ExtractTime(title); tm != "" {
		return tm
	}
	return dateextract.ExtractTime(desc)
}

// LocationFromTitle は "Titel // Ort // ..." 形式の第2要素を場所として返す。
func LocationFromTitle(title string) string {
	var parts []string
	for _, p := range slashSegRe.Split(title, -1) {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) < 2 {
		return ""
	}
	loc := parts[1]
	if utf8.RuneCountInString(loc) < 3 || genericSegments[strings.ToLower(loc)] || onlyDateishRe.MatchString(loc) {
		return ""
	}
	return loc
}

// LocationFromLabels は "Ort:" などのラベル付きフィールドから場所を返す。
func LocationFromLabels(desc string) string {
	m := labelRe.FindStringSubmatch(desc)
	if m == nil {
		return ""
	}
	v := m[2]
	if loc := nextLabelRe.FindStringIndex(v); loc != nil {
		v = v[:loc[0]]
	}
	v = strings.Trim(strings.TrimSpace(v), " ,.-–")
	if utf8.RuneCountInString(v) < 2 || onlyDateishRe.MatchString(v) {
		return ""
	}
	return v
}

// LocationFromPreposition は "im LernWerk" のような前置詞句から場所を返す。
func LocationFromPreposition(desc string) string {
	pos := 0
	for pos < len(desc) {
		idx := prepRe.FindStringSubmatchIndex(desc[pos:])
		if idx == nil {
			return ""
		}
		phrase := desc[pos+idx[4] : pos+idx[5]]
		first := strings.Fields(phrase)[0]
		// 慣用句の場合は先頭語の直後から再検索する
		next := pos + idx[4] + len(first)
		if blockedPhraseStarts[strings.ToLower(first)] {
			pos = next
			continue
		}
		if loc := prepCutRe.FindStringIndex(phrase); loc != nil {
			phrase = phrase[:loc[0]]
		}
		phrase = strings.TrimSpace(phrase)
		if utf8.RuneCountInString(phrase) >= 3 {
			return phrase
		}
		pos = next
	}
	return ""
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return n
		}
		n = n*10 + int(r-'0')
	}
	return n
}
