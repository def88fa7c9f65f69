package model

import "strings"

// MaxNotesLength はnotesを保存する際の最大文字数。
const MaxNotesLength = 500

// Candidate はソースパーサーが生成した未正規化のイベント候補を表す。
// 1回のディスカバリー実行の間だけ存在する。
type Candidate struct {
	Title       string
	Date        string // YYYY-MM-DD または空
	EndDate     string // YYYY-MM-DD または空
	Time        string // "19:00" / "19:00–22:00" または空
	Location    string
	URL         string
	Description string
	Notes       string
}

// AppendNote はnotesに診断情報を " | " 区切りで追記する。
func (c *Candidate) AppendNote(note string) {
	c.Notes = JoinNotes(c.Notes, note)
}

// JoinNotes は空でないnoteを " | " で連結する。
func JoinNotes(notes ...string) string {
	var parts []string
	for _, n := range notes {
		n = strings.TrimSpace(n)
		if n != "" {
			parts = append(parts, n)
		}
	}
	return strings.Join(parts, " | ")
}

// TruncateNotes はnotesを保存可能な長さに切り詰める。
func TruncateNotes(s string) string {
	r := []rune(s)
	if len(r) <= MaxNotesLength {
		return s
	}
	return string(r[:MaxNotesLength])
}

// Disposition は分類器の判定結果を表す。
type Disposition string

const (
	// DispositionReview は人手によるレビュー対象。
	DispositionReview Disposition = "review"
	// DispositionRejected はInboxに書き込まない。
	DispositionRejected Disposition = "rejected"
)

// Reason は判定理由を表す機械可読コード。
type Reason string

const (
	ReasonNotPublic       Reason = "not_public"
	ReasonRegularService  Reason = "regular_service"
	ReasonNonEventPattern Reason = "non_event_pattern"
	ReasonMissingDate     Reason = "missing_date"
	ReasonOutsideWindow   Reason = "outside_window"
	ReasonPublicEvent     Reason = "public_event"
)
