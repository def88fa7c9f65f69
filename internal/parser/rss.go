package parser

import (
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/Stratos888/Bocholt-Erleben/internal/dateextract"
	"github.com/Stratos888/Bocholt-Erleben/internal/model"
	"github.com/Stratos888/Bocholt-Erleben/internal/textnorm"
)

// ParseFeed はRSS/Atomの本文から記事ごとに候補を作る。
//
// 記事の公開日はイベント日付として使わず、本文中の年なし日付を補う年にだけ使う。
// イベント日付はタイトルと説明文から抽出し、見つからない候補も手作業で日付を付けられるよう残す。
func ParseFeed(content string, now time.Time) ([]model.Candidate, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, nil
	}
	feed, err := gofeed.NewParser().ParseString(content)
	if err != nil {
		return nil, model.NewParseError(model.SourceTypeRSS, err)
	}

	atom := feed.FeedType == "atom"
	out := make([]model.Candidate, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}

		// RSSは content:encoded を、Atomは summary を優先する
		desc := firstNonEmpty(item.Content, item.Description)
		if atom {
			desc = firstNonEmpty(item.Description, item.Content)
		}

		articleDate := ""
		switch {
		case item.PublishedParsed != nil:
			articleDate = item.PublishedParsed.Format(dateextract.ISOLayout)
		case item.UpdatedParsed != nil:
			articleDate = item.UpdatedParsed.Format(dateextract.ISOLayout)
		}

		out = append(out, packFeedItem(item.Title, itemLink(item), articleDate, desc, now))
	}
	return withTitle(out), nil
}

// packFeedItem は1記事分の候補を作る。
func packFeedItem(title, link, articleDate, desc string, now time.Time) model.Candidate {
	title = textnorm.CleanText(title)
	desc = textnorm.CleanText(desc)

	fallbackYear := now.Year()
	if t, ok := dateextract.ParseISO(articleDate); ok {
		fallbackYear = t.Year()
	}

	r, method := dateextract.ExtractWithMethod(title+"\n"+desc, fallbackYear)
	eventNote := "event_date:missing"
	if !r.IsZero() {
		eventNote = "event_date:regex(" + method + ")"
	}

	c := model.Candidate{
		Title:       title,
		Date:        r.Start,
		URL:         textnorm.CanonicalizeURL(textnorm.NormalizeText(link)),
		Description: desc,
		Notes:       model.JoinNotes("article_date="+articleDate, eventNote),
	}
	if r.End != r.Start {
		c.EndDate = r.End
	}
	return c
}

// itemLink は記事のリンクを返す。linkがない場合はURL形式のGUIDを使う。
func itemLink(item *gofeed.Item) string {
	if item.Link != "" {
		return item.Link
	}
	for _, l := range item.Links {
		if l != "" {
			return l
		}
	}
	if strings.HasPrefix(item.GUID, "http://") || strings.HasPrefix(item.GUID, "https://") {
		return item.GUID
	}
	return ""
}
