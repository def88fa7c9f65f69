package parser

import (
	"context"
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/Stratos888/Bocholt-Erleben/internal/feed"
	"github.com/Stratos888/Bocholt-Erleben/internal/model"
	"github.com/Stratos888/Bocholt-Erleben/internal/policy"
	"github.com/Stratos888/Bocholt-Erleben/internal/textnorm"
)

// noteDetail は一覧ページから展開した詳細ページ由来の候補に付ける出典。
const noteDetail = "source=html_detail"

// parseHTML は汎用HTMLソースを段階的に解析し、最初に候補が得られた段階の結果を返す。
//
//  1. 本文そのものがフィードならフィードとして解析
//  2. JSON-LDのEvent
//  3. 自動検出したRSS/Atom/iCalendarフィード
//  4. 集約サイトの一覧から詳細ページへの展開
//  5. 市の催し物カレンダー
//  6. アンカー周辺の日付走査
func (p *Parser) parseHTML(ctx context.Context, content, pageURL string, budget DetailFetcher) ([]model.Candidate, error) {
	limit := p.opts.MaxHTMLEvents
	now := p.now()

	switch feed.SniffKind(content) {
	case model.SourceTypeICS:
		cands, err := ParseICS(content, now)
		return capCandidates(cands, limit), err
	case model.SourceTypeRSS:
		cands, err := ParseFeed(content, now)
		return capCandidates(cands, limit), err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil, model.NewParseError(model.SourceTypeHTML, err)
	}
	pol := p.opts.Policies.LookupURL(pageURL)

	if cands := ParseJSONLD(doc, pageURL, limit); len(cands) > 0 {
		return cands, nil
	}

	if cands := p.fromDiscoveredFeeds(ctx, content, pageURL); len(cands) > 0 {
		return capCandidates(cands, limit), nil
	}

	if pol.HasDetailLinks() && budget != nil {
		if cands := p.expandDetailLinks(ctx, doc, pageURL, pol, budget); len(cands) > 0 {
			return cands, nil
		}
	}

	if pol.Civic && IsCivicCalendarURL(pageURL) {
		cands, err := p.parseCivic(ctx, doc, pageURL, pol)
		if len(cands) > 0 || err != nil {
			return capCandidates(cands, limit), err
		}
	}

	return ScanAnchors(doc, pageURL, pol, now, limit), nil
}

// fromDiscoveredFeeds はHTMLから検出したフィードを順に取得し、最初に候補が得られたものを返す。
func (p *Parser) fromDiscoveredFeeds(ctx context.Context, content, pageURL string) []model.Candidate {
	if p.fetcher == nil {
		return nil
	}
	for _, link := range feed.DiscoverFeeds(content, pageURL, feed.DefaultDiscoverLimit) {
		body, err := p.fetcher.Get(ctx, link.URL)
		if err != nil {
			p.logger.Debug("検出したフィードの取得に失敗しました",
				slog.String("url", link.URL),
				slog.String("error", err.Error()),
			)
			continue
		}

		kind := feed.SniffKind(body)
		if kind == "" {
			kind = link.Kind
		}
		var cands []model.Candidate
		if kind == model.SourceTypeICS {
			cands, err = ParseICS(body, p.now())
		} else {
			cands, err = ParseFeed(body, p.now())
		}
		if err != nil {
			p.logger.Debug("検出したフィードの解析に失敗しました",
				slog.String("url", link.URL),
				slog.String("error", err.Error()),
			)
		}
		if len(cands) == 0 {
			continue
		}
		note := "source=html_feed:" + textnorm.CanonicalizeURL(link.URL)
		for i := range cands {
			cands[i].AppendNote(note)
		}
		return cands
	}
	return nil
}

// expandDetailLinks は集約サイトの一覧ページから詳細リンクをたどり、詳細ページごとに候補を作る。
// 取得は予算の範囲に限られる。
func (p *Parser) expandDetailLinks(ctx context.Context, doc *goquery.Document, pageURL string, pol policy.Policy, budget DetailFetcher) []model.Candidate {
	type link struct{ url, text string }
	var links []link
	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		u := textnorm.ResolveURL(href, pageURL)
		if u == "" || seen[u] || !pol.IsDetailLink(u) {
			return
		}
		seen[u] = true
		links = append(links, link{url: u, text: textnorm.CollapseSpace(spacedText(a))})
	})

	now := p.now()
	var out []model.Candidate
	for _, l := range links {
		if len(out) >= p.opts.MaxHTMLEvents {
			break
		}
		body, ok := budget.FetchDetail(ctx, l.url)
		if !ok {
			continue
		}
		d := ExtractDetail(body, l.url, now)
		c := model.Candidate{
			Title:       firstNonEmpty(d.Title, l.text),
			Date:        d.Date,
			EndDate:     d.EndDate,
			Time:        d.Time,
			Location:    d.Location,
			URL:         l.url,
			Description: d.Description,
			Notes:       noteDetail,
		}
		if c.Title != "" {
			out = append(out, c)
		}
	}
	return out
}

func capCandidates(cands []model.Candidate, limit int) []model.Candidate {
	if limit > 0 && len(cands) > limit {
		return cands[:limit]
	}
	return cands
}

// skippedTextTags はテキスト抽出の対象外とする要素。
var skippedTextTags = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"template": true,
	"svg":      true,
}

// spacedText は要素の境界に空白を入れて選択範囲のテキストを返す。
func spacedText(sel *goquery.Selection) string {
	var b strings.Builder
	for _, n := range sel.Nodes {
		writeText(&b, n)
	}
	return textnorm.CollapseSpace(b.String())
}

func writeText(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		if skippedTextTags[n.Data] {
			return
		}
		b.WriteByte(' ')
		defer b.WriteByte(' ')
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c)
	}
}

// textIndex は文書のテキストと各ノードのテキスト上の位置（rune単位）を保持する。
type textIndex struct {
	text  []rune
	spans map[*html.Node][2]int
}

// buildTextIndex はrootのテキストを連結し、アンカー要素の開始・終了位置を記録する。
func buildTextIndex(root *html.Node) *textIndex {
	idx := &textIndex{spans: make(map[*html.Node][2]int)}
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if s := textnorm.CollapseSpace(n.Data); s != "" {
				idx.text = append(idx.text, []rune(s)...)
				idx.text = append(idx.text, ' ')
			}
			return
		case html.ElementNode:
			if skippedTextTags[n.Data] {
				return
			}
		}
		start := len(idx.text)
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && n.Data == "a" {
			idx.spans[n] = [2]int{start, len(idx.text)}
		}
	}
	walk(root)
	return idx
}

// window はノードの前後width文字を含むテキストを返す。
func (idx *textIndex) window(n *html.Node, width int) string {
	span, ok := idx.spans[n]
	if !ok {
		return ""
	}
	from := max(span[0]-width, 0)
	to := min(span[1]+width, len(idx.text))
	return strings.TrimSpace(string(idx.text[from:to]))
}
