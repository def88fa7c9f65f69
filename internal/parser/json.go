package parser

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/Stratos888/Bocholt-Erleben/internal/dateextract"
	"github.com/Stratos888/Bocholt-Erleben/internal/model"
	"github.com/Stratos888/Bocholt-Erleben/internal/textnorm"
)

// jsonListKeys はトップレベルのオブジェクトでイベント一覧を保持するキー。
var jsonListKeys = []string{"events", "items", "results", "data"}

// ParseJSON はイベントAPIのJSONから候補を作る。
// トップレベルの配列か、events/items/results/data のいずれかに配列を持つオブジェクトを受け付ける。
func ParseJSON(content, baseURL string) ([]model.Candidate, error) {
	if strings.TrimSpace(content) == "" {
		return nil, nil
	}
	var data any
	if err := json.Unmarshal([]byte(content), &data); err != nil {
		return nil, model.NewParseError(model.SourceTypeJSON, err)
	}

	var out []model.Candidate
	for _, ev := range jsonItems(data) {
		start := pickAny(ev, "startDate", "start", "from", "dateStart", "dtstart")
		end := pickAny(ev, "endDate", "end", "to", "dateEnd", "dtend")
		d1, d2, timeStr := dateextract.SplitDateTime(start, end)
		if d1 == "" {
			d1 = dateextract.ISODatePart(pickAny(ev, "date"))
		}
		if d2 != "" && d2 <= d1 {
			d2 = ""
		}

		out = append(out, model.Candidate{
			Title:       textnorm.CleanText(pickAny(ev, "title", "name", "summary")),
			Date:        d1,
			EndDate:     d2,
			Time:        timeStr,
			Location:    jsonLocation(ev["location"]),
			URL:         textnorm.ResolveURL(pickAny(ev, "url", "link", "href", "eventUrl"), baseURL),
			Description: textnorm.CleanText(pickAny(ev, "description", "details", "text", "content")),
			Notes:       textnorm.CleanText(pickAny(ev, "notes", "source", "sourceNote")),
		})
	}
	return withTitle(out), nil
}

func jsonItems(data any) []map[string]any {
	var list []any
	switch v := data.(type) {
	case []any:
		list = v
	case map[string]any:
		for _, k := range jsonListKeys {
			if l, ok := v[k].([]any); ok {
				list = l
				break
			}
		}
	}

	var out []map[string]any
	for _, it := range list {
		if m, ok := it.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// jsonLocation は文字列か {name, address} 形式のオブジェクトから場所を作る。
// 住所が名前と同じ場合は連結しない。
func jsonLocation(v any) string {
	switch loc := v.(type) {
	case string:
		return textnorm.CleanText(loc)
	case map[string]any:
		name := textnorm.CleanText(pickAny(loc, "name", "title", "label"))
		addr := textnorm.CleanText(pickAny(loc, "address", "street", "fullAddress"))
		switch {
		case addr == "" || strings.EqualFold(addr, name):
			return name
		case name == "":
			return addr
		}
		return name + ", " + addr
	}
	return ""
}

// pickAny は最初に値を持つキーの内容を文字列で返す。
// オブジェクトと配列は値として扱わない。
func pickAny(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		v, ok := obj[k]
		if !ok || v == nil {
			continue
		}
		if s, ok := scalarString(v); ok {
			return s
		}
	}
	return ""
}

// pickString は文字列か数値の値だけを返す。
func pickString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := obj[k].(type) {
		case string:
			return v
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}

func scalarString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(x), true
	}
	return "", false
}
