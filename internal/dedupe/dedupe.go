package dedupe

import (
	"github.com/Stratos888/Bocholt-Erleben/internal/model"
)

// Outcome は重複判定の結果。
type Outcome string

const (
	// OutcomeNew は新規行として書き込む。
	OutcomeNew Outcome = "new"
	// OutcomeLive は公開済み。書き込まない。
	OutcomeLive Outcome = "live"
	// OutcomeQueued はInbox登録済みで補完する項目もない。
	OutcomeQueued Outcome = "queued"
	// OutcomeBackfill はInbox登録済みで空の項目を補完した。
	OutcomeBackfill Outcome = "backfill"
)

// Result は1件分の判定結果。
type Result struct {
	Outcome        Outcome
	MatchedEventID string
	Score          float64
	Filled         []string
}

// Deduplicator は1回の実行の間、公開済みとInboxの索引を保持する。
type Deduplicator struct {
	live  *LiveIndex
	queue *QueueIndex
}

// New は公開済みイベントと既存のInbox行から重複判定器を作る。
func New(live []model.LiveEvent, queued []model.QueueItem) *Deduplicator {
	return &Deduplicator{
		live:  NewLiveIndex(live),
		queue: NewQueueIndex(queued),
	}
}

// Apply はInbox行の候補を判定する。新規の場合は索引に登録し、
// 登録済みの場合は空の項目を補完する。
func (d *Deduplicator) Apply(it model.QueueItem) Result {
	if id, score, ok := d.live.Match(it.Title, it.Date, it.URL); ok {
		return Result{Outcome: OutcomeLive, MatchedEventID: id, Score: score}
	}
	if i, ok := d.queue.Find(it); ok {
		if filled := d.queue.Backfill(i, it); len(filled) > 0 {
			return Result{Outcome: OutcomeBackfill, Filled: filled}
		}
		return Result{Outcome: OutcomeQueued}
	}
	d.queue.Add(it)
	return Result{Outcome: OutcomeNew}
}

// NewItems は書き込む新規行を返す。
func (d *Deduplicator) NewItems() []model.QueueItem {
	return d.queue.NewItems()
}

// Updates は既存行への補完を返す。
func (d *Deduplicator) Updates() []model.QueueUpdate {
	return d.queue.Updates()
}
