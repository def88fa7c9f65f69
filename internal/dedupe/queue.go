package dedupe

import (
	"strings"

	"github.com/Stratos888/Bocholt-Erleben/internal/model"
)

// BackfillColumns は既存のInbox行で空のときに補完する列。
var BackfillColumns = []string{
	model.ColDate,
	model.ColEndDate,
	model.ColTime,
	model.ColLocation,
	model.ColURL,
	model.ColDescription,
}

type queueRow struct {
	item    model.QueueItem
	pending bool
	filled  []string
}

// QueueIndex はInbox行の索引。実行中に追加した新規行も同じ索引に載せ、
// 同じ実行内の後続の候補がそれに対して重複判定されるようにする。
type QueueIndex struct {
	rows        []*queueRow
	byFP        map[string]int
	bySlugDate  map[string]int
	bySourceURL map[string]int
}

// NewQueueIndex は既存のInbox行から索引を作る。
func NewQueueIndex(items []model.QueueItem) *QueueIndex {
	ix := &QueueIndex{
		byFP:        make(map[string]int, len(items)),
		bySlugDate:  make(map[string]int, len(items)),
		bySourceURL: make(map[string]int, len(items)),
	}
	for _, it := range items {
		ix.insert(&queueRow{item: it})
	}
	return ix
}

func (ix *QueueIndex) insert(row *queueRow) {
	ix.rows = append(ix.rows, row)
	ix.index(len(ix.rows) - 1)
}

// index は行のキーを登録する。既に登録済みのキーは先の行を指したままにする。
func (ix *QueueIndex) index(i int) {
	it := ix.rows[i].item
	put := func(m map[string]int, k string) {
		if k == "" {
			return
		}
		if _, ok := m[k]; !ok {
			m[k] = i
		}
	}
	put(ix.byFP, NewFingerprint(it.SourceURL, it.Title, it.Date, it.URL).Key())
	put(ix.bySlugDate, slugDateKey(it.Title, it.Date))
	put(ix.bySourceURL, sourceURLKey(it.SourceURL, it.Title, it.URL))
}

func sourceURLKey(sourceURL, title, candidateURL string) string {
	fp := NewFingerprint(sourceURL, title, "", candidateURL)
	if fp.Slug == "" || fp.Third == "" {
		return ""
	}
	return fp.Key()
}

// Find は行に一致する既存行の位置を返す。
func (ix *QueueIndex) Find(it model.QueueItem) (int, bool) {
	if i, ok := ix.byFP[NewFingerprint(it.SourceURL, it.Title, it.Date, it.URL).Key()]; ok {
		return i, true
	}
	if k := slugDateKey(it.Title, it.Date); k != "" {
		if i, ok := ix.bySlugDate[k]; ok {
			return i, true
		}
	}
	if k := sourceURLKey(it.SourceURL, it.Title, it.URL); k != "" {
		if i, ok := ix.bySourceURL[k]; ok {
			return i, true
		}
	}
	return 0, false
}

// Backfill はi番目の行の空の列をitの値で埋め、埋めた列名を返す。
// 値のある列は上書きしない。終了日は開始日以降の場合に限る。
func (ix *QueueIndex) Backfill(i int, it model.QueueItem) []string {
	row := ix.rows[i]
	var filled []string
	for _, col := range BackfillColumns {
		if strings.TrimSpace(row.item.Field(col)) != "" {
			continue
		}
		v := strings.TrimSpace(it.Field(col))
		if v == "" {
			continue
		}
		if col == model.ColEndDate && (row.item.Date == "" || v < row.item.Date) {
			continue
		}
		row.item.SetField(col, v)
		filled = append(filled, col)
	}
	if len(filled) == 0 {
		return nil
	}
	row.filled = appendUnique(row.filled, filled...)
	// 日付やURLが入るとフィンガープリントが変わる
	ix.index(i)
	return filled
}

// Add は実行中に書き込む新規行を登録する。
func (ix *QueueIndex) Add(it model.QueueItem) {
	ix.insert(&queueRow{item: it, pending: true})
}

// NewItems は実行中に追加した新規行を追加順に返す。補完済みの値を含む。
func (ix *QueueIndex) NewItems() []model.QueueItem {
	var out []model.QueueItem
	for _, r := range ix.rows {
		if r.pending {
			out = append(out, r.item)
		}
	}
	return out
}

// Updates は既存行への補完を行ごとにまとめて返す。RowIDのない行は対象外。
func (ix *QueueIndex) Updates() []model.QueueUpdate {
	var out []model.QueueUpdate
	for _, r := range ix.rows {
		if r.pending || len(r.filled) == 0 || r.item.RowID == 0 {
			continue
		}
		u := model.QueueUpdate{RowID: r.item.RowID}
		for _, col := range r.filled {
			u.Fields = append(u.Fields, model.FieldValue{Column: col, Value: r.item.Field(col)})
		}
		out = append(out, u)
	}
	return out
}

func appendUnique(dst []string, vals ...string) []string {
	for _, v := range vals {
		found := false
		for _, d := range dst {
			if d == v {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	return dst
}
