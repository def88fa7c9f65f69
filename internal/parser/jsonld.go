package parser

import (
	"encoding/json"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Stratos888/Bocholt-Erleben/internal/dateextract"
	"github.com/Stratos888/Bocholt-Erleben/internal/model"
	"github.com/Stratos888/Bocholt-Erleben/internal/textnorm"
)

// noteJSONLD はJSON-LD由来の候補に付ける出典。
const noteJSONLD = "source=html_jsonld"

// ParseJSONLD はHTML内の <script type="application/ld+json"> からschema.orgのEventを抽出する。
// @graphと配列は再帰的にたどる。limit件に達したら打ち切る。
func ParseJSONLD(doc *goquery.Document, baseURL string, limit int) []model.Candidate {
	var out []model.Candidate
	for _, obj := range jsonLDObjects(doc) {
		if !isJSONLDEvent(obj) {
			continue
		}
		c := jsonLDCandidate(obj, baseURL)
		if c.Title == "" {
			continue
		}
		c.Notes = noteJSONLD
		out = append(out, c)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// jsonLDObjects は文書内のJSON-LDを平坦化したオブジェクトを文書順に返す。
// 解析できないブロックは無視する。
func jsonLDObjects(doc *goquery.Document) []map[string]any {
	var out []map[string]any
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		typ, _ := s.Attr("type")
		if !strings.Contains(strings.ToLower(typ), "ld+json") {
			return
		}
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}
		var data any
		if err := json.Unmarshal([]byte(raw), &data); err != nil {
			return
		}
		out = flattenJSONLD(data, out)
	})
	return out
}

func flattenJSONLD(v any, out []map[string]any) []map[string]any {
	switch x := v.(type) {
	case map[string]any:
		out = append(out, x)
		if graph, ok := x["@graph"].([]any); ok {
			for _, it := range graph {
				out = flattenJSONLD(it, out)
			}
		}
	case []any:
		for _, it := range x {
			out = flattenJSONLD(it, out)
		}
	}
	return out
}

// isJSONLDEvent は @type がEventかそのサブタイプ（MusicEventなど）かを返す。
func isJSONLDEvent(obj map[string]any) bool {
	t, ok := obj["@type"]
	if !ok {
		t = obj["type"]
	}
	var types []string
	switch v := t.(type) {
	case string:
		types = []string{v}
	case []any:
		for _, it := range v {
			if s, ok := it.(string); ok {
				types = append(types, s)
			}
		}
	}
	for _, typ := range types {
		if strings.HasSuffix(textnorm.NormKey(typ), "event") {
			return true
		}
	}
	return false
}

// jsonLDCandidate は1つのEventオブジェクトを候補にする。日付と時刻は別々に取り出す。
func jsonLDCandidate(obj map[string]any, baseURL string) model.Candidate {
	start := pickString(obj, "startDate", "startDateTime", "start")
	end := pickString(obj, "endDate", "endDateTime", "end")
	d1, d2, timeStr := dateextract.SplitDateTime(start, end)

	return model.Candidate{
		Title:       textnorm.CleanText(pickString(obj, "name", "headline")),
		Date:        d1,
		EndDate:     d2,
		Time:        timeStr,
		Location:    jsonLDLocation(obj["location"]),
		URL:         textnorm.ResolveURL(pickString(obj, "url"), baseURL),
		Description: textnorm.CleanText(pickString(obj, "description")),
	}
}

// jsonLDLocation はPlaceの名前と住所を "名前, 通り, PLZ 市" の形にする。
// 住所が名前に含まれる場合は名前だけを返す。
func jsonLDLocation(v any) string {
	switch loc := v.(type) {
	case string:
		return textnorm.CleanText(loc)
	case []any:
		for _, it := range loc {
			if s := jsonLDLocation(it); s != "" {
				return s
			}
		}
	case map[string]any:
		name := textnorm.CleanText(pickString(loc, "name"))
		addr := ""
		switch a := loc["address"].(type) {
		case string:
			addr = textnorm.CleanText(a)
		case map[string]any:
			street := textnorm.CleanText(pickString(a, "streetAddress"))
			city := strings.TrimSpace(textnorm.CleanText(pickString(a, "postalCode")) + " " + textnorm.CleanText(pickString(a, "addressLocality")))
			var parts []string
			for _, p := range []string{street, city} {
				if p != "" {
					parts = append(parts, p)
				}
			}
			addr = strings.Join(parts, ", ")
		}
		if name != "" && addr != "" && !strings.Contains(textnorm.NormKey(name), textnorm.NormKey(addr)) {
			return name + ", " + addr
		}
		if name != "" {
			return name
		}
		return addr
	}
	return ""
}
