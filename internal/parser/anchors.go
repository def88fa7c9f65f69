package parser

import (
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/Stratos888/Bocholt-Erleben/internal/classify"
	"github.com/Stratos888/Bocholt-Erleben/internal/dateextract"
	"github.com/Stratos888/Bocholt-Erleben/internal/feed"
	"github.com/Stratos888/Bocholt-Erleben/internal/model"
	"github.com/Stratos888/Bocholt-Erleben/internal/policy"
	"github.com/Stratos888/Bocholt-Erleben/internal/textnorm"
)

// noteAnchor はアンカー走査由来の候補に付ける出典。
const noteAnchor = "source=html_anchor"

// maxContainerText はアンカーを囲む要素のテキストを日付の手がかりに使う最大文字数。
const maxContainerText = 600

// containerSelector はリスト項目1件分とみなす要素。
const containerSelector = "li, article, tr, dd, .event, .events-item, .teaser, .card, .termin"

var (
	digitsOnlyRe = regexp.MustCompile(`^[\d\s.,:/–-]+$`)
	ageRangeRe   = regexp.MustCompile(`(?i)^(?:ab\s+)?\d{1,2}\s*(?:[-–]|bis)?\s*(?:\d{1,2})?\s*(?:jahre|jahren|j\.)?\+?$`)
	eventPathRe  = regexp.MustCompile(`(?i)event|veranstalt|termin|kalender|programm|agenda`)
	listPathRe   = regexp.MustCompile(`(?i)/(?:kategorie|category|categories|tag|tags|schlagwort|archiv|archive|autor|author)(?:/|$)`)
	fileExtRe    = regexp.MustCompile(`(?i)\.(?:pdf|jpe?g|png|gif|webp|svg|docx?|xlsx?|pptx?|zip|mp3|mp4|ics)$`)
)

// listQueryParams はカテゴリ・並べ替え・ページ送りを表すクエリ項目。
var listQueryParams = map[string]bool{
	"sort": true, "order": true, "orderby": true, "page": true, "seite": true,
	"p": true, "offset": true, "category": true, "kategorie": true, "cat": true,
	"tag": true, "filter": true, "view": true, "ansicht": true,
}

// chromeTitles はサイト共通のナビゲーションなどイベントではないリンク文言。
var chromeTitles = map[string]bool{
	"mehr": true, "mehr erfahren": true, "mehr lesen": true, "weiterlesen": true, "weiter": true,
	"zurück": true, "details": true, "mehr infos": true, "info": true, "infos": true,
	"startseite": true, "home": true, "impressum": true, "datenschutz": true,
	"datenschutzerklärung": true, "kontakt": true, "barrierefreiheit": true, "sitemap": true,
	"login": true, "anmelden": true, "suche": true, "newsletter": true, "presse": true,
	"alle veranstaltungen": true, "alle termine": true, "veranstaltungen": true, "termine": true,
	"kalender": true, "veranstaltungskalender": true, "vorherige": true, "nächste": true,
	"facebook": true, "instagram": true, "youtube": true, "twitter": true, "tiktok": true,
	"zum inhalt springen": true, "menü": true, "schließen": true, "drucken": true, "teilen": true,
	"ical": true, "ics": true, "export": true, "in kalender eintragen": true,
}

// ScanAnchors はページ内のリンクごとに周辺テキストから日付を探し、候補を作る。
//
// 日付は <time datetime> 属性を優先し、次にリンクを囲むリスト項目のテキスト、
// 項目がなければ前後ContextWindow文字を探す。
// 日付かイベントを示す語のどちらかがあるリンクだけを候補にし、語がなく日付だけの場合は
// URLのパスがイベントらしい形であることを求める。
func ScanAnchors(doc *goquery.Document, pageURL string, pol policy.Policy, now time.Time, limit int) []model.Candidate {
	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	idx := buildTextIndex(body.Nodes[0])
	self := textnorm.CanonicalizeURL(pageURL)

	seen := make(map[string]bool)
	var out []model.Candidate
	body.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if a.Closest("nav, header, footer").Length() > 0 {
			return true
		}
		href, _ := a.Attr("href")
		u := textnorm.ResolveURL(href, pageURL)
		if u == "" || u == self || seen[u] || !isCandidateURL(u, pol) {
			return true
		}

		title := anchorTitle(a)
		if !isCandidateTitle(title) {
			return true
		}

		c, found := anchorDate(a, idx, pol.ContextWindow, now)
		hasSignal := classify.HasEventSignal(title)
		switch {
		case !found && !hasSignal:
			return true
		case found && !hasSignal && !eventPathRe.MatchString(urlPath(u)):
			return true
		}

		seen[u] = true
		c.Title = title
		c.URL = u
		c.Notes = model.JoinNotes(noteAnchor, c.Notes)
		out = append(out, c)
		return limit <= 0 || len(out) < limit
	})
	return out
}

// anchorTitle はリンク文言、title属性、画像のaltの順にタイトルを決める。
func anchorTitle(a *goquery.Selection) string {
	if t := textnorm.CleanText(spacedText(a)); t != "" {
		return t
	}
	if t, ok := a.Attr("title"); ok {
		if t = textnorm.CleanText(t); t != "" {
			return t
		}
	}
	if alt, ok := a.Find("img[alt]").First().Attr("alt"); ok {
		return textnorm.CleanText(alt)
	}
	return ""
}

// isCandidateTitle は数字だけ、年齢区分、サイト共通の文言を除外する。
func isCandidateTitle(title string) bool {
	if utf8.RuneCountInString(title) < 4 {
		return false
	}
	if digitsOnlyRe.MatchString(title) || ageRangeRe.MatchString(title) {
		return false
	}
	return !chromeTitles[textnorm.NormKey(strings.Trim(title, " »«›‹>|·-"))]
}

// isCandidateURL は一覧・カテゴリ・ファイル・ホスト別ノイズのURLを除外する。
func isCandidateURL(rawURL string, pol policy.Policy) bool {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	if feed.IsCalendarLink(rawURL) || fileExtRe.MatchString(u.Path) {
		return false
	}
	if listPathRe.MatchString(u.Path) || pol.IsSkippedPath(u.Path) {
		return false
	}
	for key := range u.Query() {
		if listQueryParams[strings.ToLower(key)] {
			return false
		}
	}
	return true
}

type dateSource struct {
	src  string
	text string
}

// anchorDate はリンク周辺から日付と時刻を探す。見つかった場合foundがtrueになる。
func anchorDate(a *goquery.Selection, idx *textIndex, width int, now time.Time) (model.Candidate, bool) {
	var c model.Candidate
	container := a.Closest(containerSelector)

	// 構造化された日時を最優先する
	timeEl := a.Find("time[datetime]").First()
	if timeEl.Length() == 0 && container.Length() > 0 {
		timeEl = container.Find("time[datetime]").First()
	}
	if dt, ok := timeEl.Attr("datetime"); ok {
		if d := dateextract.ISODatePart(dt); d != "" {
			c.Date = d
			c.Time = dateextract.ISOTimePart(dt)
			c.AppendNote("date_from=datetime")
			return c, true
		}
	}

	// リスト項目があれば項目内のテキストだけを使う
	src := dateSource{src: "context", text: idx.window(a.Nodes[0], width)}
	if container.Length() > 0 {
		if t := spacedText(container); utf8.RuneCountInString(t) <= maxContainerText {
			src = dateSource{src: "container", text: t}
		}
	}

	r, _ := dateextract.ExtractNear(src.text, now)
	if r.IsZero() {
		return c, false
	}
	c.Date = r.Start
	if r.End != r.Start {
		c.EndDate = r.End
	}
	c.Time = dateextract.ExtractTime(src.text)
	c.AppendNote("date_from=" + src.src)
	return c, true
}

func urlPath(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return path.Clean("/" + u.Path)
}
