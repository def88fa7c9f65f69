package feed

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/Stratos888/Bocholt-Erleben/internal/model"
	"github.com/Stratos888/Bocholt-Erleben/internal/repository"
	"github.com/Stratos888/Bocholt-Erleben/internal/textnorm"
)

// scoutKeywords はイベントソースらしいURL・リンクテキストに含まれる語。
var scoutKeywords = []string{
	"veranstaltung",
	"veranstaltungen",
	"veranstaltungskalender",
	"termine",
	"kalender",
	"event",
	"events",
	"ical",
	"ics",
	"rss",
}

// PageFetcher はページ本文を取得するインターフェース。
type PageFetcher interface {
	Get(ctx context.Context, rawURL string) (string, error)
}

// ScoutService はシードページからイベントソースの候補URLを集める。
// 各シードを1回だけ取得し、イベント内容は抽出しない。
type ScoutService struct {
	fetcher PageFetcher
	repo    repository.ScoutRepository
	pacer   *rate.Limiter
	now     func() time.Time
	logger  *slog.Logger
}

// NewScoutService はScoutServiceの新しいインスタンスを生成する。
// repoがnilの場合は記録を行わず結果を返すだけになる。delayはシード間の待ち時間。
func NewScoutService(fetcher PageFetcher, repo repository.ScoutRepository, delay time.Duration, logger *slog.Logger) *ScoutService {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if delay > 0 {
		limit = rate.Every(delay)
	}
	return &ScoutService{
		fetcher: fetcher,
		repo:    repo,
		pacer:   rate.NewLimiter(limit, 1),
		now:     time.Now,
		logger:  logger,
	}
}

// Scout はシードページを巡回し、新しい候補を返す。
// 取得に失敗したシードはログに残して次へ進む。
func (s *ScoutService) Scout(ctx context.Context, seeds []string) ([]model.ScoutCandidate, error) {
	known := make(map[string]bool)
	if s.repo != nil {
		k, err := s.repo.KnownURLs(ctx)
		if err != nil {
			return nil, fmt.Errorf("既知の候補URLの取得に失敗しました: %w", err)
		}
		known = k
	}

	var out []model.ScoutCandidate
	for _, seed := range seeds {
		seed = strings.TrimSpace(seed)
		if seed == "" {
			continue
		}
		if err := s.pacer.Wait(ctx); err != nil {
			return out, err
		}

		body, err := s.fetcher.Get(ctx, seed)
		if err != nil {
			s.logger.Warn("シードページの取得に失敗しました",
				slog.String("seed", seed),
				slog.String("error", err.Error()),
			)
			continue
		}

		found := s.candidatesFromPage(body, seed)
		added := 0
		for _, c := range found {
			key := textnorm.NormKey(c.URL)
			if known[key] {
				continue
			}
			known[key] = true
			out = append(out, c)
			added++
		}
		s.logger.Info("シードページを解析しました",
			slog.String("seed", seed),
			slog.Int("links", len(found)),
			slog.Int("new_candidates", added),
		)
	}

	if s.repo != nil && len(out) > 0 {
		n, err := s.repo.InsertCandidates(ctx, out)
		if err != nil {
			return out, fmt.Errorf("ソース候補の保存に失敗しました: %w", err)
		}
		s.logger.Info("ソース候補を保存しました", slog.Int("inserted", n))
	}
	return out, nil
}

// candidatesFromPage はページ内のリンクから候補を作る。
// 自動検出されたフィードを先に、続いてキーワードに一致するアンカーを並べる。
func (s *ScoutService) candidatesFromPage(body, seed string) []model.ScoutCandidate {
	now := s.now()
	seen := make(map[string]bool)
	var out []model.ScoutCandidate

	add := func(rawURL, text, linkType string, discovered bool) {
		if seen[rawURL] {
			return
		}
		hint, conf, ok := scoreLink(rawURL, text)
		if discovered {
			// 自動検出されたフィードはURLに語がなくても採用する
			if !ok {
				hint = "feed"
			}
			conf = max(conf, 0.75)
		} else if !ok {
			return
		}
		seen[rawURL] = true
		out = append(out, model.ScoutCandidate{
			SeedURL:    seed,
			URL:        rawURL,
			Domain:     hostOf(rawURL),
			Type:       GuessKind(rawURL, linkType),
			LinkText:   textnorm.Truncate(text, 120),
			Hint:       hint,
			Confidence: conf,
			FoundAt:    now,
		})
	}

	for _, l := range DiscoverFeeds(body, seed, 50) {
		kind := "application/rss+xml"
		if l.Kind == model.SourceTypeICS {
			kind = "text/calendar"
		}
		add(l.URL, l.Title, kind, true)
	}
	for _, a := range extractAnchors(body) {
		u := resolveFeedURL(a.href, seed)
		if u == "" {
			continue
		}
		add(u, a.text, "", false)
	}
	return out
}

// scoreLink はURLとリンクテキストのキーワード一致から手がかりと確度を求める。
func scoreLink(rawURL, text string) (string, float64, bool) {
	lu := strings.ToLower(rawURL)
	lt := strings.ToLower(text)

	var hits []string
	for _, k := range scoutKeywords {
		if strings.Contains(lu, k) || strings.Contains(lt, k) {
			hits = append(hits, k)
		}
	}
	if len(hits) == 0 {
		return "", 0, false
	}

	conf := 0.25 + 0.15*float64(len(hits))
	if strings.Contains(lu, "ical") || strings.Contains(lu, ".ics") || strings.Contains(lu, "rss") || strings.Contains(lu, "feed") {
		conf += 0.25
	}
	if conf > 1 {
		conf = 1
	}

	sort.Strings(hits)
	if len(hits) > 4 {
		hits = hits[:4]
	}
	return strings.Join(hits, ","), float64(int(conf*100+0.5)) / 100, true
}

type anchor struct {
	href string
	text string
}

// extractAnchors は <a href> とそのテキストを文書順に返す。
func extractAnchors(body string) []anchor {
	var out []anchor
	tokenizer := html.NewTokenizer(strings.NewReader(body))
	var current *anchor
	var text strings.Builder

	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			return out

		case html.StartTagToken:
			tn, hasAttr := tokenizer.TagName()
			if string(tn) != "a" || !hasAttr {
				continue
			}
			for {
				key, val, more := tokenizer.TagAttr()
				if strings.EqualFold(string(key), "href") {
					href := strings.TrimSpace(string(val))
					if href != "" && !strings.HasPrefix(href, "#") {
						current = &anchor{href: href}
						text.Reset()
					}
				}
				if !more {
					break
				}
			}

		case html.TextToken:
			if current != nil {
				text.Write(tokenizer.Text())
				text.WriteByte(' ')
			}

		case html.EndTagToken:
			tn, _ := tokenizer.TagName()
			if string(tn) == "a" && current != nil {
				current.text = textnorm.CollapseSpace(text.String())
				out = append(out, *current)
				current = nil
			}
		}
	}
}

// scoutEntry はSOURCES_FILEへ貼り付けられる形式の1件。
type scoutEntry struct {
	Name       string           `yaml:"name"`
	Type       model.SourceType `yaml:"type"`
	URL        string           `yaml:"url"`
	Enabled    bool             `yaml:"enabled"`
	FoundOn    string           `yaml:"found_on"`
	Hint       string           `yaml:"hint"`
	Confidence float64          `yaml:"confidence"`
}

// MarshalYAML は候補をソースレジストリ形式のYAMLにする。
// 人が確認してから有効化するため enabled は常にfalse。
func MarshalYAML(candidates []model.ScoutCandidate) ([]byte, error) {
	doc := struct {
		Sources []scoutEntry `yaml:"sources"`
	}{}
	for _, c := range candidates {
		name := c.Domain
		if c.LinkText != "" {
			name = c.Domain + ": " + c.LinkText
		}
		doc.Sources = append(doc.Sources, scoutEntry{
			Name:       name,
			Type:       c.Type,
			URL:        c.URL,
			FoundOn:    c.SeedURL,
			Hint:       c.Hint,
			Confidence: c.Confidence,
		})
	}
	return yaml.Marshal(doc)
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
