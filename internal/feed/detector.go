// Package feed はHTMLページからのフィード自動検出とソース候補のスカウトを提供する。
package feed

import (
	"mime"
	"strings"

	"golang.org/x/net/html"

	"github.com/Stratos888/Bocholt-Erleben/internal/model"
	"github.com/Stratos888/Bocholt-Erleben/internal/textnorm"
)

// DefaultDiscoverLimit は1つのHTMLソースから試すフィードの最大数。
const DefaultDiscoverLimit = 3

// FeedLink はHTMLから検出されたフィード候補を表す。
type FeedLink struct {
	URL   string
	Kind  model.SourceType
	Title string
}

// feedContentTypes はフィードとして認識するContent-Typeのリスト。
var feedContentTypes = map[string]model.SourceType{
	"application/rss+xml":  model.SourceTypeRSS,
	"application/atom+xml": model.SourceTypeRSS,
	"text/calendar":        model.SourceTypeICS,
}

// xmlContentTypes はXMLとして認識するContent-Type（ボディ解析が必要）。
var xmlContentTypes = []string{
	"text/xml",
	"application/xml",
}

// IsDirectFeed はContent-Typeとボディを解析して、
// 指定されたレスポンスがRSS/Atom/iCalendarかどうかを判定する。
func IsDirectFeed(contentType string, body []byte) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.Split(contentType, ";")[0])
	}
	mediaType = strings.ToLower(mediaType)

	if _, ok := feedContentTypes[mediaType]; ok {
		return true
	}

	isXML := false
	for _, xmlCT := range xmlContentTypes {
		if mediaType == xmlCT {
			isXML = true
			break
		}
	}
	if !isXML || len(body) == 0 {
		return false
	}
	return SniffKind(string(body)) == model.SourceTypeRSS
}

// SniffKind はボディの先頭部分からフィードの種類を推定する。
// RSS/Atomならrss、iCalendarならics、どちらでもなければ空を返す。
func SniffKind(body string) model.SourceType {
	// 先頭4KBを検査（XMLプロローグ + ルート要素が含まれるのに十分）
	prefix := body
	if len(prefix) > 4096 {
		prefix = prefix[:4096]
	}
	prefix = strings.ToLower(strings.TrimLeft(prefix, "\ufeff \t\r\n"))

	if strings.HasPrefix(prefix, "begin:vcalendar") {
		return model.SourceTypeICS
	}
	if strings.Contains(prefix, "<rss") || strings.Contains(prefix, "<rdf:rdf") {
		return model.SourceTypeRSS
	}
	if strings.Contains(prefix, "<feed") && strings.Contains(prefix, "http://www.w3.org/2005/atom") {
		return model.SourceTypeRSS
	}
	return ""
}

// GuessKind はURLとリンクのtype属性からソースの種類を推定する。
func GuessKind(rawURL, linkType string) model.SourceType {
	lt := strings.ToLower(linkType)
	lu := strings.ToLower(rawURL)
	switch {
	case strings.Contains(lt, "text/calendar"), strings.Contains(lt, "ics"):
		return model.SourceTypeICS
	case strings.Contains(lt, "rss+xml"), strings.Contains(lt, "atom+xml"):
		return model.SourceTypeRSS
	case IsCalendarLink(lu):
		return model.SourceTypeICS
	case strings.Contains(lu, "ical"):
		return model.SourceTypeICS
	case strings.Contains(lu, "rss"), strings.Contains(lu, "atom"), strings.Contains(lu, "/feed"):
		return model.SourceTypeRSS
	}
	return model.SourceTypeHTML
}

// IsCalendarLink はhrefがiCalendarへの直接リンクかを返す。
func IsCalendarLink(href string) bool {
	h := strings.ToLower(strings.TrimSpace(href))
	if strings.HasPrefix(h, "webcal://") {
		return true
	}
	if i := strings.IndexByte(h, '#'); i >= 0 {
		h = h[:i]
	}
	path := h
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return strings.HasSuffix(path, ".ics") ||
		strings.Contains(h, "?ical=1") ||
		strings.Contains(h, "&ical=1") ||
		strings.Contains(h, "format=ical")
}

// DiscoverFeeds はHTML全体からRSS/Atom/iCalendarのリンクを検出する。
// <link rel="alternate"> を先に、続いて .ics・webcal・?ical=1 への直接リンクを文書順に集める。
// 相対URLはbaseURLで解決し、重複を除いてlimit件までを返す。
func DiscoverFeeds(htmlBody, baseURL string, limit int) []FeedLink {
	if limit <= 0 {
		limit = DefaultDiscoverLimit
	}

	var alternates, direct []FeedLink
	tokenizer := html.NewTokenizer(strings.NewReader(htmlBody))

tokens:
	for {
		tt := tokenizer.Next()
		switch tt {
		case html.ErrorToken:
			break tokens

		case html.StartTagToken, html.SelfClosingTagToken:
			tn, hasAttr := tokenizer.TagName()
			if !hasAttr {
				continue
			}
			tagName := string(tn)

			var rel, linkType, href, title string
			for {
				key, val, more := tokenizer.TagAttr()
				switch strings.ToLower(string(key)) {
				case "rel":
					rel = strings.ToLower(string(val))
				case "type":
					linkType = strings.ToLower(string(val))
				case "href":
					href = strings.TrimSpace(string(val))
				case "title":
					title = string(val)
				}
				if !more {
					break
				}
			}
			if href == "" {
				continue
			}

			if tagName == "link" && strings.Contains(rel, "alternate") {
				kind := model.SourceType("")
				switch {
				case strings.Contains(linkType, "rss+xml"), strings.Contains(linkType, "atom+xml"):
					kind = model.SourceTypeRSS
				case strings.Contains(linkType, "text/calendar"), strings.Contains(linkType, "ics"):
					kind = model.SourceTypeICS
				}
				if kind != "" {
					if u := resolveFeedURL(href, baseURL); u != "" {
						alternates = append(alternates, FeedLink{URL: u, Kind: kind, Title: title})
					}
				}
				continue
			}

			if IsCalendarLink(href) {
				if u := resolveFeedURL(href, baseURL); u != "" {
					direct = append(direct, FeedLink{URL: u, Kind: model.SourceTypeICS, Title: title})
				}
			}
		}
	}

	seen := make(map[string]bool)
	var out []FeedLink
	for _, l := range append(alternates, direct...) {
		if seen[l.URL] {
			continue
		}
		seen[l.URL] = true
		out = append(out, l)
		if len(out) == limit {
			break
		}
	}
	return out
}

// resolveFeedURL はwebcal:// をhttps:// に書き換えてから絶対URLに解決する。
func resolveFeedURL(href, baseURL string) string {
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "webcal://") {
		href = "https://" + href[len("webcal://"):]
	}
	return textnorm.ResolveURL(href, baseURL)
}
