package parser

import (
	"regexp"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"github.com/Stratos888/Bocholt-Erleben/internal/dateextract"
	"github.com/Stratos888/Bocholt-Erleben/internal/model"
	"github.com/Stratos888/Bocholt-Erleben/internal/textnorm"
)

// icsLocationURL は一部のカレンダーがURLの代わりに使う独自プロパティ。
const icsLocationURL ics.ComponentProperty = "LOCATION-URL"

var icsStampRe = regexp.MustCompile(`^(\d{4})(\d{2})(\d{2})(?:T(\d{2})(\d{2})(\d{2})?)?$`)

var icsUnescaper = strings.NewReplacer(`\n`, "\n", `\N`, "\n", `\,`, ",", `\;`, ";", `\\`, `\`)

// icsStamp はDTSTART/DTENDの値を壁時計の時刻として保持する。
type icsStamp struct {
	at     time.Time
	allDay bool
}

func (s icsStamp) date() string {
	return s.at.Format(dateextract.ISOLayout)
}

func (s icsStamp) clock() string {
	if s.allDay {
		return ""
	}
	return s.at.Format("15:04")
}

// parseICSStamp は "20260204", "20260204T193000", "20260204T193000Z" を解釈する。
// 末尾のZはタイムゾーン変換をせず、数字をそのまま現地の壁時計時刻として読む。
func parseICSStamp(v string) (icsStamp, bool) {
	v = strings.TrimSuffix(strings.TrimSpace(v), "Z")
	m := icsStampRe.FindStringSubmatch(v)
	if m == nil {
		return icsStamp{}, false
	}
	d, ok := dateextract.MakeDate(atoi(m[1]), time.Month(atoi(m[2])), atoi(m[3]))
	if !ok {
		return icsStamp{}, false
	}
	day, _ := time.Parse(dateextract.ISOLayout, d)
	if m[4] == "" {
		return icsStamp{at: day, allDay: true}, true
	}
	if _, ok := dateextract.FormatClock(atoi(m[4]), atoi(m[5])); !ok {
		return icsStamp{}, false
	}
	at := day.Add(time.Duration(atoi(m[4]))*time.Hour + time.Duration(atoi(m[5]))*time.Minute)
	return icsStamp{at: at}, true
}

// ParseICS はiCalendarの本文からVEVENTごとに候補を作る。
// DTSTARTを解釈できないイベントは飛ばす。RRULEを持ち初回が過去のイベントは、
// today以降の次回開催日に進めて notes に rrule=next を付ける。
func ParseICS(content string, today time.Time) ([]model.Candidate, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}
	cal, err := ics.ParseCalendar(strings.NewReader(content))
	if err != nil {
		return nil, model.NewParseError(model.SourceTypeICS, err)
	}

	todayStart := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)

	var out []model.Candidate
	for _, ev := range cal.Events() {
		start, ok := parseICSStamp(icsProp(ev, ics.ComponentPropertyDtStart))
		if !ok {
			continue
		}
		end, hasEnd := parseICSStamp(icsProp(ev, ics.ComponentPropertyDtEnd))
		if hasEnd && end.allDay && start.allDay {
			// 終日イベントのDTENDは翌日を指す
			end.at = end.at.AddDate(0, 0, -1)
		}

		var notes string
		if rule := icsProp(ev, ics.ComponentPropertyRrule); rule != "" && start.at.Before(todayStart) {
			if next, ok := nextOccurrence(rule, start.at, todayStart); ok {
				shift := next.Sub(start.at)
				start.at = next
				end.at = end.at.Add(shift)
				notes = "rrule=next"
			}
		}

		c := model.Candidate{
			Title:       textnorm.CleanText(icsText(ev, ics.ComponentPropertySummary)),
			Date:        start.date(),
			Location:    textnorm.CleanText(icsText(ev, ics.ComponentPropertyLocation)),
			Description: textnorm.CleanText(icsText(ev, ics.ComponentPropertyDescription)),
			Notes:       notes,
		}
		if hasEnd {
			if d := end.date(); d > c.Date {
				c.EndDate = d
			}
			c.Time = dateextract.JoinTimes(start.clock(), end.clock())
		} else {
			c.Time = start.clock()
		}

		rawURL := icsProp(ev, ics.ComponentPropertyUrl)
		if rawURL == "" {
			rawURL = icsProp(ev, icsLocationURL)
		}
		c.URL = textnorm.CanonicalizeURL(textnorm.NormalizeText(rawURL))

		out = append(out, c)
	}
	return withTitle(out), nil
}

// nextOccurrence はruleに従うfrom以降の最初の開催を返す。
func nextOccurrence(rule string, dtstart, from time.Time) (time.Time, bool) {
	r, err := rrule.StrToRRule(rule)
	if err != nil {
		return time.Time{}, false
	}
	r.DTStart(dtstart)
	next := r.After(from, true)
	if next.IsZero() {
		return time.Time{}, false
	}
	return next.UTC(), true
}

// icsProp は最初に現れたプロパティの値を返す。
func icsProp(ev *ics.VEvent, prop ics.ComponentProperty) string {
	p := ev.GetProperty(prop)
	if p == nil {
		return ""
	}
	return strings.TrimSpace(p.Value)
}

// icsText はTEXT型プロパティのエスケープを戻す。
func icsText(ev *ics.VEvent, prop ics.ComponentProperty) string {
	return icsUnescaper.Replace(icsProp(ev, prop))
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
