// Package policy はホストごとのクロール調整値を1つの表にまとめる。
//
// アンカー周辺の文脈幅、詳細ページ取得の上限、ノイズパス、集約サイトの詳細リンク形式、
// 市の催し物カレンダー判定をホスト接尾辞で引けるようにする。
package policy

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultContextWindow はアンカー前後から切り出す文脈の既定文字数。
const DefaultContextWindow = 240

// Policy は1ホスト分の調整値。
type Policy struct {
	// ContextWindow はアンカー前後から日付を探す文字数。
	ContextWindow int `yaml:"context_window"`
	// MaxDetailFetches は詳細ページ取得のホスト別上限。0は全体設定に従う。
	MaxDetailFetches int `yaml:"max_detail_fetches"`
	// SkipPaths はイベントではないことが分かっているパスの部分文字列。
	SkipPaths []string `yaml:"skip_paths"`
	// DetailLinkPattern は一覧ページから展開する詳細リンクの正規表現。
	DetailLinkPattern string `yaml:"detail_link_pattern"`
	// Civic は市の催し物カレンダー形式のページを持つホストか。
	Civic bool `yaml:"civic"`
	// PaginationParam は次ページ取得時に増やすフォーム項目名。
	PaginationParam string `yaml:"pagination_param"`

	detailRe *regexp.Regexp
}

// IsSkippedPath はパスがノイズとして登録済みかを返す。
func (p Policy) IsSkippedPath(path string) bool {
	low := strings.ToLower(path)
	for _, s := range p.SkipPaths {
		if s != "" && strings.Contains(low, strings.ToLower(s)) {
			return true
		}
	}
	return false
}

// IsDetailLink はURLが集約サイトの詳細リンク形式に一致するかを返す。
func (p Policy) IsDetailLink(u string) bool {
	return p.detailRe != nil && p.detailRe.MatchString(u)
}

// HasDetailLinks は詳細リンク展開が設定されているかを返す。
func (p Policy) HasDetailLinks() bool {
	return p.detailRe != nil
}

// Table はホスト接尾辞からPolicyを引く表。
type Table struct {
	def    Policy
	byHost map[string]Policy
}

// fileFormat はHOST_POLICY_FILEの形式。
type fileFormat struct {
	Default *Policy           `yaml:"default"`
	Hosts   map[string]Policy `yaml:"hosts"`
}

// Default は組み込みの表を返す。
func Default() *Table {
	t := &Table{
		def:    Policy{ContextWindow: DefaultContextWindow},
		byHost: make(map[string]Policy),
	}
	// 組み込み値は固定のため正規表現の誤りはここで検出される
	for host, p := range builtin {
		if err := t.Set(host, p); err != nil {
			panic(err)
		}
	}
	return t
}

var builtin = map[string]Policy{
	"bocholt.de": {
		ContextWindow:    320,
		MaxDetailFetches: 12,
		SkipPaths:        []string{"/rathaus/", "/presse", "/stellenangebote", "/bekanntmachungen", "/suche"},
		Civic:            true,
		PaginationParam:  "position",
	},
	"muensterland.com": {
		ContextWindow:     200,
		MaxDetailFetches:  10,
		SkipPaths:         []string{"/newsletter", "/kontakt"},
		DetailLinkPattern: `(?i)/veranstaltung(?:en)?/[a-z0-9][a-z0-9-]*-\d+/?$`,
	},
	"bocholt-tourismus.de": {
		ContextWindow: 280,
		SkipPaths:     []string{"/unterkuenfte", "/gastronomie"},
	},
}

// Set はホスト接尾辞にPolicyを登録する。
func (t *Table) Set(hostSuffix string, p Policy) error {
	hostSuffix = strings.ToLower(strings.Trim(strings.TrimSpace(hostSuffix), "."))
	if hostSuffix == "" {
		return fmt.Errorf("ホスト名が空です")
	}
	if p.DetailLinkPattern != "" {
		re, err := regexp.Compile(p.DetailLinkPattern)
		if err != nil {
			return fmt.Errorf("%s の detail_link_pattern が不正です: %w", hostSuffix, err)
		}
		p.detailRe = re
	}
	t.byHost[hostSuffix] = p
	return nil
}

// Lookup はホスト名に最も長く一致する接尾辞のPolicyを返す。
// 接尾辞はラベル境界でのみ一致し、未設定の項目は既定値で補う。
func (t *Table) Lookup(host string) Policy {
	host = strings.ToLower(strings.Trim(strings.TrimSpace(host), "."))
	best, bestLen := t.def, -1
	for suffix, p := range t.byHost {
		if host != suffix && !strings.HasSuffix(host, "."+suffix) {
			continue
		}
		if len(suffix) > bestLen {
			best, bestLen = p, len(suffix)
		}
	}
	if best.ContextWindow <= 0 {
		best.ContextWindow = t.def.ContextWindow
	}
	return best
}

// LookupURL はURLのホストでLookupする。
func (t *Table) LookupURL(rawURL string) Policy {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return t.Lookup("")
	}
	return t.Lookup(u.Hostname())
}

// Load は組み込みの表にYAMLファイルの設定を重ねて返す。pathが空なら組み込みのみ。
func Load(path string) (*Table, error) {
	t := Default()
	if path == "" {
		return t, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ホストポリシーファイルの読み込みに失敗: %w", err)
	}
	var ff fileFormat
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return nil, fmt.Errorf("ホストポリシーファイルの解析に失敗: %w", err)
	}
	if ff.Default != nil && ff.Default.ContextWindow > 0 {
		t.def.ContextWindow = ff.Default.ContextWindow
	}
	for host, p := range ff.Hosts {
		if err := t.Set(host, p); err != nil {
			return nil, err
		}
	}
	return t, nil
}
