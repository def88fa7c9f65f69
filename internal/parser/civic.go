package parser

import (
	"context"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/Stratos888/Bocholt-Erleben/internal/dateextract"
	"github.com/Stratos888/Bocholt-Erleben/internal/model"
	"github.com/Stratos888/Bocholt-Erleben/internal/policy"
	"github.com/Stratos888/Bocholt-Erleben/internal/textnorm"
)

// noteCivic は催し物カレンダー由来の候補に付ける出典。
const noteCivic = "source=html_civic"

// maxCivicLocation は場所として受け入れる最大文字数。
const maxCivicLocation = 80

// maxCivicBlock は1件分の項目とみなすテキストの最大文字数。
const maxCivicBlock = 700

var (
	civicWeekdayRe = regexp.MustCompile(`(?i)(?:montag|dienstag|mittwoch|donnerstag|freitag|samstag|sonntag),?\s+\d{1,2}\.\s*[A-Za-zÄÖÜäöüß]+\.?(?:\s+\d{4})?`)
	civicMultiRe   = regexp.MustCompile(`(?i)mehrere\s+termine\s+vom\s+\d{1,2}\.(?:\s*[A-Za-zÄÖÜäöüß]+\.?)?(?:\s+\d{4})?\s*(?:–|—|-|bis)\s*\d{1,2}\.\s*[A-Za-zÄÖÜäöüß]+\.?(?:\s+\d{4})?`)
	civicClockRe   = regexp.MustCompile(`(?i)\d{1,2}[:.]\d{2}\s*uhr(?:\s*(?:–|—|-|bis)\s*\d{1,2}[:.]\d{2}\s*uhr)?`)
	civicGenreRe   = regexp.MustCompile(`^([\p{L}-]+)\s*[:|–-]?\s+(.+)$`)
	civicTailRe    = regexp.MustCompile(`(?i)\s*(?:mehr|details|weiterlesen|mehr erfahren)\s*[»>›]?\s*$`)
)

// IsCivicCalendarURL はURLが市の催し物カレンダーの一覧ページかを返す。
func IsCivicCalendarURL(rawURL string) bool {
	return strings.Contains(strings.ToLower(rawURL), "veranstaltungskalender")
}

// civicEntry は一覧の1項目。
type civicEntry struct {
	anchor *goquery.Selection
	text   string
	marker []int
}

// ParseCivicPage は催し物カレンダーの1ページから候補を作る。
// 2つ目の戻り値はページ内で認識した項目数で、次ページの開始位置に使う。
func ParseCivicPage(doc *goquery.Document, pageURL string, today time.Time) ([]model.Candidate, int) {
	entries := civicEntries(doc)
	out := make([]model.Candidate, 0, len(entries))
	for _, e := range entries {
		if c, ok := civicCandidate(e, pageURL, today); ok {
			out = append(out, c)
		}
	}
	return out, len(entries)
}

// civicEntries はリンクを含み日付の目印を持つ最も内側の要素を項目として集める。
func civicEntries(doc *goquery.Document) []civicEntry {
	seen := make(map[*html.Node]bool)
	var out []civicEntry
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		block := a
		for depth := 0; depth < 5; depth++ {
			block = block.Parent()
			if block.Length() == 0 || goquery.NodeName(block) == "body" {
				return
			}
			text := spacedText(block)
			if utf8.RuneCountInString(text) > maxCivicBlock {
				return
			}
			marker := civicMarker(text)
			if marker == nil {
				continue
			}
			node := block.Nodes[0]
			if seen[node] {
				return
			}
			seen[node] = true
			out = append(out, civicEntry{anchor: a, text: text, marker: marker})
			return
		}
	})
	return out
}

// civicMarker は曜日付きの日付か複数日程の表記の位置を返す。
func civicMarker(text string) []int {
	if loc := civicMultiRe.FindStringIndex(text); loc != nil {
		return loc
	}
	return civicWeekdayRe.FindStringIndex(text)
}

func civicCandidate(e civicEntry, pageURL string, today time.Time) (model.Candidate, bool) {
	markerText := e.text[e.marker[0]:e.marker[1]]
	r, _ := dateextract.ExtractNear(markerText, today)
	if r.IsZero() {
		return model.Candidate{}, false
	}

	title := strings.Trim(strings.TrimSpace(e.text[:e.marker[0]]), " ,;:|–-")
	if title == "" {
		title = textnorm.CleanText(spacedText(e.anchor))
	}
	title = collapseGenrePrefix(textnorm.CleanText(title))
	if title == "" {
		return model.Candidate{}, false
	}

	href, _ := e.anchor.Attr("href")
	c := model.Candidate{
		Title: title,
		Date:  r.Start,
		URL:   textnorm.ResolveURL(href, pageURL),
		Notes: noteCivic,
	}
	if r.End != r.Start {
		c.EndDate = r.End
	}

	tail := e.text[e.marker[1]:]
	c.Time = dateextract.ExtractTime(tail)
	if loc := civicClockRe.FindStringIndex(tail); loc != nil {
		c.Location = sanitizeCivicLocation(tail[loc[1]:], title)
	}
	return c, true
}

// collapseGenrePrefix は "Konzert: Konzert der Musikschule" のように
// 先頭のジャンル語が直後に繰り返される場合に1つにまとめる。
func collapseGenrePrefix(title string) string {
	m := civicGenreRe.FindStringSubmatch(title)
	if m == nil {
		return title
	}
	genre, rest := m[1], m[2]
	first := strings.FieldsFunc(rest, func(r rune) bool { return !unicode.IsLetter(r) && r != '-' })
	if len(first) > 0 && strings.EqualFold(first[0], genre) {
		return rest
	}
	return title
}

// sanitizeCivicLocation は時刻の後ろに続く文字列を場所として検証する。
// 長すぎる、タイトルと重なる、記号が多い場合は空にして後段の推定に任せる。
func sanitizeCivicLocation(s, title string) string {
	s = civicTailRe.ReplaceAllString(s, "")
	s = strings.Trim(strings.TrimSpace(s), " ,;:|–-")
	if s == "" || utf8.RuneCountInString(s) > maxCivicLocation {
		return ""
	}
	ks, kt := textnorm.NormKey(s), textnorm.NormKey(title)
	if strings.Contains(ks, kt) || strings.Contains(kt, ks) {
		return ""
	}
	punct := 0
	for _, r := range s {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			punct++
		}
	}
	if punct > 4 || float64(punct) > 0.15*float64(utf8.RuneCountInString(s)) {
		return ""
	}
	if r, _ := dateextract.ExtractWithMethod(s, 2000); !r.IsZero() {
		return ""
	}
	return s
}

// parseCivic は1ページ目を解析し、ページ送りのフォームがあれば続きのページをPOSTで取得する。
// ページをまたいで同じ候補は1つにまとめる。続きのページの取得失敗は記録して打ち切る。
func (p *Parser) parseCivic(ctx context.Context, doc *goquery.Document, pageURL string, pol policy.Policy) ([]model.Candidate, error) {
	today := p.now()

	seen := make(map[string]bool)
	var out []model.Candidate
	add := func(cands []model.Candidate) int {
		added := 0
		for _, c := range cands {
			key := textnorm.Slugify(c.Title) + "|" + c.Date + "|" + c.URL
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, c)
			added++
		}
		return added
	}

	cands, entries := ParseCivicPage(doc, pageURL, today)
	add(cands)
	position := entries

	if p.fetcher == nil || pol.PaginationParam == "" {
		return out, nil
	}

	for page := 2; page <= p.opts.CivicMaxPages && len(out) < p.opts.MaxHTMLEvents; page++ {
		action, values, ok := paginationForm(doc, pageURL, pol.PaginationParam)
		if !ok {
			break
		}
		values.Set(pol.PaginationParam, strconv.Itoa(position))

		body, err := p.fetcher.PostForm(ctx, action, values)
		if err != nil {
			p.logger.Warn("催し物カレンダーの次ページ取得に失敗しました",
				slog.String("url", action),
				slog.Int("page", page),
				slog.String("error", err.Error()),
			)
			break
		}
		next, err := goquery.NewDocumentFromReader(strings.NewReader(body))
		if err != nil {
			break
		}

		cands, entries := ParseCivicPage(next, action, today)
		if entries == 0 || add(cands) == 0 {
			break
		}
		position += entries
		doc = next
	}
	return out, nil
}

// paginationForm はparamという名前の入力欄を持つフォームの送信先と入力値を返す。
func paginationForm(doc *goquery.Document, pageURL, param string) (string, url.Values, bool) {
	form := doc.Find("form").FilterFunction(func(_ int, f *goquery.Selection) bool {
		return f.Find(`input[name="` + param + `"]`).Length() > 0
	}).First()
	if form.Length() == 0 {
		return "", nil, false
	}

	action, _ := form.Attr("action")
	target := textnorm.ResolveURL(action, pageURL)
	if strings.TrimSpace(action) == "" || target == "" {
		target = pageURL
	}

	values := url.Values{}
	form.Find("input[name]").Each(func(_ int, in *goquery.Selection) {
		typ := strings.ToLower(in.AttrOr("type", "text"))
		if typ == "submit" || typ == "button" || typ == "image" || typ == "file" {
			return
		}
		if (typ == "checkbox" || typ == "radio") && !in.Is("[checked]") {
			return
		}
		values.Add(in.AttrOr("name", ""), in.AttrOr("value", ""))
	})
	form.Find("select[name]").Each(func(_ int, sel *goquery.Selection) {
		opt := sel.Find("option[selected]").First()
		if opt.Length() == 0 {
			opt = sel.Find("option").First()
		}
		if opt.Length() > 0 {
			values.Set(sel.AttrOr("name", ""), opt.AttrOr("value", textnorm.CollapseSpace(opt.Text())))
		}
	})
	return target, values, true
}
