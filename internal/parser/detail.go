package parser

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/Stratos888/Bocholt-Erleben/internal/dateextract"
	"github.com/Stratos888/Bocholt-Erleben/internal/locinfer"
	"github.com/Stratos888/Bocholt-Erleben/internal/textnorm"
)

// maxDetailText は詳細ページ本文から日付を探す範囲（文字数）。
const maxDetailText = 3000

// mainSelectors は詳細ページの本文とみなす要素。先に一致したものを使う。
var mainSelectors = []string{"main", "article", "[role=main]", "#content", ".content", "body"}

// Detail は詳細ページから取り出した項目。取り出せなかった項目は空になる。
type Detail struct {
	Title       string
	Date        string
	EndDate     string
	Time        string
	Location    string
	Description string
}

// ExtractDetail は詳細ページのHTMLからイベントの項目を取り出す。
// JSON-LD、<time datetime>、本文テキストの順に使い、先に得られた値を優先する。
// 1件の詳細ページなので本文テキストからの日付抽出も行う。
func ExtractDetail(body, pageURL string, today time.Time) Detail {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return Detail{}
	}

	var d Detail
	for _, obj := range jsonLDObjects(doc) {
		if !isJSONLDEvent(obj) {
			continue
		}
		c := jsonLDCandidate(obj, pageURL)
		d = Detail{
			Title:       c.Title,
			Date:        c.Date,
			EndDate:     c.EndDate,
			Time:        c.Time,
			Location:    c.Location,
			Description: c.Description,
		}
		break
	}

	if d.Title == "" {
		d.Title = textnorm.CleanText(firstNonEmpty(
			doc.Find(`meta[property="og:title"]`).AttrOr("content", ""),
			spacedText(doc.Find("h1").First()),
			doc.Find("title").First().Text(),
		))
	}

	if d.Date == "" {
		doc.Find("time[datetime]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			dt := s.AttrOr("datetime", "")
			if day := dateextract.ISODatePart(dt); day != "" {
				d.Date = day
				if d.Time == "" {
					d.Time = dateextract.ISOTimePart(dt)
				}
				return false
			}
			return true
		})
	}

	text := mainText(doc)
	if d.Date == "" {
		r, _ := dateextract.ExtractNear(text, today)
		d.Date = r.Start
		if r.End != r.Start {
			d.EndDate = r.End
		}
	}
	if d.Time == "" {
		d.Time = dateextract.ExtractTime(text)
	}
	if d.Location == "" {
		d.Location = locinfer.LocationFromLabels(text)
	}
	if d.Description == "" {
		d.Description = textnorm.CleanText(firstNonEmpty(
			doc.Find(`meta[name="description"]`).AttrOr("content", ""),
			doc.Find(`meta[property="og:description"]`).AttrOr("content", ""),
		))
	}
	return d
}

// mainText は本文要素のテキストを先頭maxDetailText文字まで返す。
func mainText(doc *goquery.Document) string {
	for _, sel := range mainSelectors {
		s := doc.Find(sel).First()
		if s.Length() == 0 {
			continue
		}
		s = s.Clone()
		s.Find("nav, header, footer, aside, form").Remove()
		text := spacedText(s)
		if text == "" {
			continue
		}
		if utf8.RuneCountInString(text) > maxDetailText {
			text = string([]rune(text)[:maxDetailText])
		}
		return text
	}
	return ""
}
