// Package classify はイベント候補を「レビュー対象」か「破棄」かに分類する。
//
// 規則は上から順に評価され、最初に一致したものが採用される。
// 本当に判断できない候補（日付なしなど）はレビューに回し、破棄は確実なノイズに限る。
package classify

import (
	"strings"
	"time"

	"github.com/Stratos888/Bocholt-Erleben/internal/dateextract"
	"github.com/Stratos888/Bocholt-Erleben/internal/model"
)

// Window は受け入れる開催日の範囲（今日を基準とした日数）を表す。
type Window struct {
	FutureDays int
	PastDays   int
}

// DefaultWindow は今日から365日先までを受け入れる。
var DefaultWindow = Window{FutureDays: 365}

// Classifier は規則ベースの分類器。
type Classifier struct {
	window Window
	now    func() time.Time
}

// New は受け入れ範囲を指定して分類器を生成する。
func New(window Window) *Classifier {
	return &Classifier{window: window, now: time.Now}
}

// WithClock は基準日を決める時計を差し替えた分類器を返す。
func (c *Classifier) WithClock(now func() time.Time) *Classifier {
	cp := *c
	cp.now = now
	return &cp
}

// Classify は候補の判定結果と理由を返す。
// ソース種別・名前・URLは現在の規則では参照しないが、判定の入力として受け取る。
func (c *Classifier) Classify(sourceType model.SourceType, sourceName, sourceURL, title, description, eventDate string) (model.Disposition, model.Reason) {
	text := strings.TrimSpace(title + "\n" + description)
	hasSignal := HasEventSignal(text)

	switch {
	case notPublicRe.MatchString(text):
		return model.DispositionRejected, model.ReasonNotPublic
	case regularServiceRe.MatchString(text) && !hasSignal:
		return model.DispositionRejected, model.ReasonRegularService
	case IsNonEvent(text) && !hasSignal:
		return model.DispositionRejected, model.ReasonNonEventPattern
	}

	eventDate = strings.TrimSpace(eventDate)
	if eventDate == "" {
		return model.DispositionReview, model.ReasonMissingDate
	}
	if !c.InWindow(eventDate) {
		return model.DispositionRejected, model.ReasonOutsideWindow
	}
	return model.DispositionReview, model.ReasonPublicEvent
}

// InWindow は日付が受け入れ範囲内かを返す。解析できない日付は範囲外とする。
func (c *Classifier) InWindow(iso string) bool {
	d, ok := dateextract.ParseISO(iso)
	if !ok {
		return false
	}
	now := c.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	earliest := today.AddDate(0, 0, -c.window.PastDays)
	latest := today.AddDate(0, 0, c.window.FutureDays)
	return !d.Before(earliest) && !d.After(latest)
}
