package dedupe

import (
	"github.com/Stratos888/Bocholt-Erleben/internal/model"
)

// 公開済みイベントとの一致度。
const (
	ScoreURL       = 1.0
	ScoreTitleDate = 0.95
)

// LiveIndex は公開済みイベントを正規化URLと (slug, date) で引く索引。
type LiveIndex struct {
	byURL      map[string]string
	bySlugDate map[string]string
}

// NewLiveIndex は公開済みイベントから索引を作る。
// 同じキーを持つイベントが複数ある場合は後のものが優先される。
func NewLiveIndex(events []model.LiveEvent) *LiveIndex {
	ix := &LiveIndex{
		byURL:      make(map[string]string, len(events)),
		bySlugDate: make(map[string]string, len(events)),
	}
	for _, ev := range events {
		if k := urlKey(ev.URL); k != "" {
			ix.byURL[k] = ev.ID
		}
		if k := slugDateKey(ev.Title, ev.Date); k != "" {
			ix.bySlugDate[k] = ev.ID
		}
	}
	return ix
}

// Match は候補に一致する公開済みイベントのIDと一致度を返す。URLの一致を優先する。
func (ix *LiveIndex) Match(title, date, candidateURL string) (string, float64, bool) {
	if k := urlKey(candidateURL); k != "" {
		if id, ok := ix.byURL[k]; ok {
			return id, ScoreURL, true
		}
	}
	if k := slugDateKey(title, date); k != "" {
		if id, ok := ix.bySlugDate[k]; ok {
			return id, ScoreTitleDate, true
		}
	}
	return "", 0, false
}
