package dateextract

import (
	"fmt"
	"regexp"
	"strings"
)

// TimeRangeSep は開始・終了時刻を連結する区切り文字。
const TimeRangeSep = "–"

var (
	clockRangeRe = regexp.MustCompile(`(?i)(\d{1,2})[:.](\d{2})\s*(?:uhr)?\s*(?:–|—|-|bis)\s*(\d{1,2})[:.](\d{2})\s*uhr`)
	clockUhrRe   = regexp.MustCompile(`(?i)(?:\b(?:um|ab|von|beginn|start|einlass)\s*:?\s*)?(\d{1,2})[:.](\d{2})\s*uhr`)
	clockBareRe  = regexp.MustCompile(`(?:^|[^\d:])(\d{1,2}):(\d{2})(?:[^\d:]|$)`)
	isoClockRe   = regexp.MustCompile(`^(\d{1,2}):(\d{2})`)
)

// FormatClock は時と分を検証して "HH:MM" 形式にする。
func FormatClock(hour, minute int) (string, bool) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return "", false
	}
	return fmt.Sprintf("%02d:%02d", hour, minute), true
}

// JoinTimes は開始・終了時刻を "HH:MM–HH:MM" にする。
// 終了がない、または開始と同じ場合は開始のみを返す。
func JoinTimes(start, end string) string {
	if start == "" {
		return ""
	}
	if end == "" || end == start {
		return start
	}
	return start + TimeRangeSep + end
}

// ExtractTime はテキストから時刻を抽出する。
// "Uhr" 付きの表記を優先し、見つからなければ単独の HH:MM を採用する。
func ExtractTime(text string) string {
	if text == "" {
		return ""
	}

	for _, m := range clockRangeRe.FindAllStringSubmatch(text, -1) {
		start, ok1 := FormatClock(atoi(m[1]), atoi(m[2]))
		end, ok2 := FormatClock(atoi(m[3]), atoi(m[4]))
		if ok1 && ok2 {
			return JoinTimes(start, end)
		}
	}

	for _, m := range clockUhrRe.FindAllStringSubmatch(text, -1) {
		if t, ok := FormatClock(atoi(m[1]), atoi(m[2])); ok {
			return t
		}
	}

	for _, m := range clockBareRe.FindAllStringSubmatch(text, -1) {
		if t, ok := FormatClock(atoi(m[1]), atoi(m[2])); ok {
			return t
		}
	}
	return ""
}

// ISODatePart は "2026-03-10T19:30:00+01:00" の日付部分を返す。
// 暦として正しくない場合は空文字を返す。
func ISODatePart(s string) string {
	s = strings.TrimSpace(s)
	if len(s) < 10 || s[4] != '-' || s[7] != '-' {
		return ""
	}
	if !IsValidISO(s[:10]) {
		return ""
	}
	return s[:10]
}

// ISOTimePart は "2026-03-10T19:30:00+01:00" の時刻部分を "HH:MM" で返す。
// タイムゾーン変換は行わず、記載された壁時計の時刻をそのまま使う。
func ISOTimePart(s string) string {
	s = strings.TrimSpace(s)
	i := strings.IndexAny(s, "T ")
	if i < 0 || i+1 >= len(s) {
		return ""
	}
	m := isoClockRe.FindStringSubmatch(s[i+1:])
	if m == nil {
		return ""
	}
	t, ok := FormatClock(atoi(m[1]), atoi(m[2]))
	if !ok {
		return ""
	}
	return t
}

// SplitDateTime は構造化された開始・終了日時を (開始日, 終了日, 時刻) に分解する。
// 終了時刻は終了日が開始日と同じか空の場合のみ時刻範囲に含める。
// 終了日は開始日より後の場合のみ返す。単日のイベントではICSやRSSと同様に空になる。
func SplitDateTime(start, end string) (string, string, string) {
	d1, d2 := ISODatePart(start), ISODatePart(end)
	t1, t2 := ISOTimePart(start), ISOTimePart(end)
	if d2 != "" && d1 != "" && d2 <= d1 {
		if d2 < d1 {
			t2 = ""
		}
		d2 = ""
	}

	timeStr := ""
	switch {
	case t1 != "" && t2 != "" && d2 == "":
		timeStr = JoinTimes(t1, t2)
	case t1 != "":
		timeStr = t1
	}
	return d1, d2, timeStr
}
