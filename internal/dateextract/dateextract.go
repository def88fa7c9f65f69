// Package dateextract は非構造テキストから日付・日付範囲・時刻を抽出する。
//
// 抽出戦略は優先順位付きの純粋関数のリストとして定義され、最初に成功した戦略の結果を採用する。
// 暦として存在しない日付（2月30日など）はその戦略の失敗として扱い、エラーは返さない。
package dateextract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ISOLayout は日付の正規形式。
const ISOLayout = "2006-01-02"

// Range は抽出された日付範囲を表す。単日の場合Endは空になる。
type Range struct {
	Start string
	End   string
}

// IsZero は日付が抽出できなかったかを返す。
func (r Range) IsZero() bool {
	return r.Start == ""
}

// Strategy は1つの抽出戦略を表す。
type Strategy struct {
	Name    string
	Extract func(text string, fallbackYear int) (Range, bool)
}

// Strategies は優先順位順の抽出戦略。
var Strategies = []Strategy{
	{Name: "iso", Extract: extractISO},
	{Name: "dd/mm/yyyy", Extract: extractSlash},
	{Name: "range(dd.-dd.monat)", Extract: extractSharedMonthRange},
	{Name: "range(dd.monat-dd.monat)", Extract: extractTwoMonthRange},
	{Name: "dd.mm.yyyy", Extract: extractDMY},
	{Name: "dd.mm.", Extract: extractDM},
	{Name: "dd.monat", Extract: extractDayMonthName},
}

// monthNames はドイツ語の月名（3文字略記を含む）から月番号への対応表。
var monthNames = map[string]time.Month{
	"januar": time.January, "jan": time.January, "jänner": time.January,
	"februar": time.February, "feb": time.February,
	"märz": time.March, "maerz": time.March, "mrz": time.March, "mär": time.March,
	"april": time.April, "apr": time.April,
	"mai": time.May,
	"juni": time.June, "jun": time.June,
	"juli": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"oktober": time.October, "okt": time.October,
	"november": time.November, "nov": time.November,
	"dezember": time.December, "dez": time.December,
}

// LookupMonth は月名トークンを月番号に変換する。
func LookupMonth(token string) (time.Month, bool) {
	m, ok := monthNames[strings.ToLower(strings.TrimSuffix(strings.TrimSpace(token), "."))]
	return m, ok
}

const (
	monthTok = `([A-Za-zÄÖÜäöüß]+)`
	rangeSep = `(?:–|—|-|/|bis)`
)

var (
	isoRangeRe  = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})(?:T[0-9:.+\-Z]*)?\s*(?:–|—|-|bis)\s*(\d{4}-\d{2}-\d{2})`)
	isoRe       = regexp.MustCompile(`(?:^|\D)(\d{4})-(\d{2})-(\d{2})(?:\D|$)`)
	slashRe     = regexp.MustCompile(`(?:^|\D)(\d{1,2})/(\d{1,2})/(\d{4}|\d{2})(?:\D|$)`)
	numRangeRe  = regexp.MustCompile(`(?:^|\D)(\d{1,2})\.?\s*` + rangeSep + `\s*(\d{1,2})\.(\d{1,2})\.(\d{4}|\d{2})?(?:\D|$)`)
	nameRangeRe = regexp.MustCompile(`(?i)(?:^|\D)(\d{1,2})\.?\s*` + rangeSep + `\s*(\d{1,2})\.\s*` + monthTok + `\.?(?:\s*(\d{4}))?`)
	twoMonthRe  = regexp.MustCompile(`(?i)(?:^|\D)(\d{1,2})\.\s*` + monthTok + `\.?(?:\s*(\d{4}))?\s*(?:–|—|-|bis)\s*(\d{1,2})\.\s*` + monthTok + `\.?(?:\s*(\d{4}))?`)
	dmyRe       = regexp.MustCompile(`(?:^|\D)(\d{1,2})\.(\d{1,2})\.(\d{4}|\d{2})(?:\D|$)`)
	dmRe        = regexp.MustCompile(`(?:^|[^\d.])(\d{1,2})\.(\d{1,2})\.(?:\D|$)`)
	dayMonthRe  = regexp.MustCompile(`(?i)(?:^|\D)(\d{1,2})\.\s*` + monthTok + `\.?(?:\s*(\d{4})(?:\D|$))?`)
)

// Extract はテキストから (開始日, 終了日) をISO形式で抽出する。
// 抽出できない場合は2つの空文字を返す。
func Extract(text string, fallbackYear int) (string, string) {
	r, _ := ExtractWithMethod(text, fallbackYear)
	return r.Start, r.End
}

// ExtractWithMethod は抽出結果と採用された戦略名を返す。
// 抽出できない場合の戦略名は空文字。
func ExtractWithMethod(text string, fallbackYear int) (Range, string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Range{}, ""
	}
	for _, s := range Strategies {
		if r, ok := s.Extract(text, fallbackYear); ok {
			return r, s.Name
		}
	}
	return Range{}, ""
}

// PastTolerance は年を省略した日付を今年のものとみなす過去方向の許容幅。
const PastTolerance = 30 * 24 * time.Hour

// ExtractNear はtodayの年を補完年として日付を抽出する。
// 年が省略されていて、結果がtodayよりPastTolerance以上過去になる場合は翌年として扱う。
// 一覧ページの "20. Februar" のような表記を次の開催と読むために使う。
func ExtractNear(text string, today time.Time) (Range, string) {
	year := today.Year()
	r, method := ExtractWithMethod(text, year)
	if r.IsZero() {
		return r, method
	}
	next, _ := ExtractWithMethod(text, year+1)
	if next == r {
		// 年が明記されている
		return r, method
	}
	start, ok := ParseISO(r.Start)
	if !ok {
		return r, method
	}
	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)
	if day.Sub(start) > PastTolerance && !next.IsZero() {
		return next, method
	}
	return r, method
}

// MakeDate は年月日から暦として正しい日付をISO形式で返す。
func MakeDate(year int, month time.Month, day int) (string, bool) {
	if year < 1900 || year > 2200 || month < time.January || month > time.December || day < 1 || day > 31 {
		return "", false
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || t.Month() != month {
		return "", false
	}
	return t.Format(ISOLayout), true
}

// ParseISO はISO形式の日付を解析する。
func ParseISO(s string) (time.Time, bool) {
	t, err := time.Parse(ISOLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// IsValidISO はsが暦として正しいYYYY-MM-DDかを返す。
func IsValidISO(s string) bool {
	_, ok := ParseISO(s)
	return ok
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func expandYear(s string, fallbackYear int) int {
	switch len(s) {
	case 0:
		return fallbackYear
	case 2:
		return 2000 + atoi(s)
	}
	return atoi(s)
}

func extractISO(text string, _ int) (Range, bool) {
	if m := isoRangeRe.FindStringSubmatch(text); m != nil {
		if IsValidISO(m[1]) && IsValidISO(m[2]) && m[2] >= m[1] {
			return Range{Start: m[1], End: m[2]}, true
		}
	}
	m := isoRe.FindStringSubmatch(text)
	if m == nil {
		return Range{}, false
	}
	d, ok := MakeDate(atoi(m[1]), time.Month(atoi(m[2])), atoi(m[3]))
	if !ok {
		return Range{}, false
	}
	return Range{Start: d, End: d}, true
}

func extractSlash(text string, _ int) (Range, bool) {
	m := slashRe.FindStringSubmatch(text)
	if m == nil {
		return Range{}, false
	}
	d, ok := MakeDate(expandYear(m[3], 0), time.Month(atoi(m[2])), atoi(m[1]))
	if !ok {
		return Range{}, false
	}
	return Range{Start: d}, true
}

func extractSharedMonthRange(text string, fallbackYear int) (Range, bool) {
	if m := numRangeRe.FindStringSubmatch(text); m != nil {
		year := expandYear(m[4], fallbackYear)
		if r, ok := makeRange(year, time.Month(atoi(m[3])), atoi(m[1]), year, time.Month(atoi(m[3])), atoi(m[2])); ok {
			return r, true
		}
	}
	for _, m := range nameRangeRe.FindAllStringSubmatch(text, -1) {
		month, ok := LookupMonth(m[3])
		if !ok {
			continue
		}
		year := expandYear(m[4], fallbackYear)
		if r, ok := makeRange(year, month, atoi(m[1]), year, month, atoi(m[2])); ok {
			return r, true
		}
	}
	return Range{}, false
}

func extractTwoMonthRange(text string, fallbackYear int) (Range, bool) {
	for _, m := range twoMonthRe.FindAllStringSubmatch(text, -1) {
		m1, ok1 := LookupMonth(m[2])
		m2, ok2 := LookupMonth(m[5])
		if !ok1 || !ok2 {
			continue
		}
		d1, d2 := atoi(m[1]), atoi(m[4])
		var y1, y2 int
		switch {
		case m[3] != "" && m[6] != "":
			y1, y2 = atoi(m[3]), atoi(m[6])
		case m[6] != "":
			// "28. Dezember – 2. Januar 2027" の年は終了側に付く
			y2 = atoi(m[6])
			y1 = y2
			if m1 > m2 {
				y1 = y2 - 1
			}
		case m[3] != "":
			y1 = atoi(m[3])
			y2 = y1
			if m2 < m1 {
				y2 = y1 + 1
			}
		default:
			y1, y2 = fallbackYear, fallbackYear
			if m2 < m1 {
				y2 = y1 + 1
			}
		}
		if r, ok := makeRange(y1, m1, d1, y2, m2, d2); ok {
			return r, true
		}
	}
	return Range{}, false
}

func extractDMY(text string, _ int) (Range, bool) {
	m := dmyRe.FindStringSubmatch(text)
	if m == nil {
		return Range{}, false
	}
	d, ok := MakeDate(expandYear(m[3], 0), time.Month(atoi(m[2])), atoi(m[1]))
	if !ok {
		return Range{}, false
	}
	return Range{Start: d}, true
}

func extractDM(text string, fallbackYear int) (Range, bool) {
	m := dmRe.FindStringSubmatch(text)
	if m == nil {
		return Range{}, false
	}
	d, ok := MakeDate(fallbackYear, time.Month(atoi(m[2])), atoi(m[1]))
	if !ok {
		return Range{}, false
	}
	return Range{Start: d}, true
}

func extractDayMonthName(text string, fallbackYear int) (Range, bool) {
	for _, m := range dayMonthRe.FindAllStringSubmatch(text, -1) {
		month, ok := LookupMonth(m[2])
		if !ok {
			continue
		}
		d, ok := MakeDate(expandYear(m[3], fallbackYear), month, atoi(m[1]))
		if !ok {
			return Range{}, false
		}
		return Range{Start: d}, true
	}
	return Range{}, false
}

func makeRange(y1 int, m1 time.Month, d1 int, y2 int, m2 time.Month, d2 int) (Range, bool) {
	start, ok := MakeDate(y1, m1, d1)
	if !ok {
		return Range{}, false
	}
	end, ok := MakeDate(y2, m2, d2)
	if !ok || end < start {
		return Range{}, false
	}
	if end == start {
		return Range{Start: start}, true
	}
	return Range{Start: start, End: end}, true
}

// FormatLongGerman はISO日付を "20. Februar 2026" 形式にする。
// 解析できない場合は入力をそのまま返す。
func FormatLongGerman(iso string) string {
	t, ok := ParseISO(iso)
	if !ok {
		return iso
	}
	return fmt.Sprintf("%d. %s %d", t.Day(), germanMonths[t.Month()-1], t.Year())
}

var germanMonths = [...]string{
	"Januar", "Februar", "März", "April", "Mai", "Juni",
	"Juli", "August", "September", "Oktober", "November", "Dezember",
}
