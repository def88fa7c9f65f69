// Package describe はソースが説明文を持たない候補に、既知の項目だけから短い説明文を組み立てる。
package describe

import (
	"strings"

	"github.com/Stratos888/Bocholt-Erleben/internal/dateextract"
	"github.com/Stratos888/Bocholt-Erleben/internal/textnorm"
)

// Input は説明文の材料となる項目。
type Input struct {
	Title          string
	Date           string
	Time           string
	City           string
	Location       string
	Category       string
	URL            string
	RawDescription string
}

// Compose は説明文を返す。
// 元の説明文が空でなければ整形したものをそのまま返し、生成は行わない。
func Compose(in Input) string {
	if raw := textnorm.CleanText(in.RawDescription); raw != "" {
		return raw
	}

	title := textnorm.CleanText(in.Title)
	if title == "" {
		title = "Veranstaltung"
	}
	lead := title
	if !strings.HasSuffix(lead, ":") {
		lead += ":"
	}

	var facts []string
	if in.Date != "" {
		facts = append(facts, "Am "+dateextract.FormatLongGerman(in.Date))
	} else {
		facts = append(facts, "Termin")
	}
	if tp := TimePhrase(in.Time); tp != "" {
		facts = append(facts, tp)
	}
	if pp := PlacePhrase(in.City, in.Location); pp != "" {
		facts = append(facts, pp)
	}

	sentences := []string{lead + " " + strings.Join(facts, " ") + "."}
	if cat := textnorm.CleanText(in.Category); cat != "" {
		sentences = append(sentences, "Ein Termin aus dem Bereich "+cat+".")
	}
	if strings.TrimSpace(in.URL) != "" {
		sentences = append(sentences, "Details und mögliche Änderungen: offizielle Veranstaltungsseite.")
	} else {
		sentences = append(sentences, "Details und mögliche Änderungen: offizielle Quelle.")
	}
	return strings.Join(sentences, " ")
}

// TimePhrase は "19:00" を "ab 19:00 Uhr"、"19:00–22:00" を "von 19:00 bis 22:00 Uhr" にする。
func TimePhrase(timeStr string) string {
	t := strings.TrimSpace(timeStr)
	if t == "" {
		return ""
	}
	if a, b, ok := strings.Cut(t, dateextract.TimeRangeSep); ok {
		a, b = strings.TrimSpace(a), strings.TrimSpace(b)
		if a != "" && b != "" {
			return "von " + a + " bis " + b + " Uhr"
		}
	}
	return "ab " + t + " Uhr"
}

// PlacePhrase は場所の句を作る。場所に都市名が含まれる場合は都市名を重ねない。
func PlacePhrase(city, location string) string {
	city = textnorm.CleanText(city)
	loc := textnorm.CleanText(location)
	switch {
	case loc != "" && city != "":
		if strings.Contains(textnorm.NormKey(loc), textnorm.NormKey(city)) {
			return "in " + loc
		}
		return "in " + loc + ", " + city
	case city != "":
		return "in " + city
	case loc != "":
		return "in " + loc
	}
	return ""
}
