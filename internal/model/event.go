package model

import "time"

// LiveEvent は公開済みのイベントを表す。
// 「公開済みかどうか」の判定の基準となる。
type LiveEvent struct {
	ID          string
	Title       string
	Date        string
	EndDate     string
	Time        string
	City        string
	Location    string
	Kategorie   string
	URL         string
	Description string
}

// AuditEntry は処理した候補1件分の監査ログを表す。
// 却下・重複を含むすべての候補について記録する。
type AuditEntry struct {
	RunID          string
	RunAt          time.Time
	SourceName     string
	SourceType     SourceType
	SourceURL      string
	Disposition    Disposition
	Reason         Reason
	AlreadyLive    bool
	AlreadyQueued  bool
	Backfilled     bool
	Written        bool
	MatchScore     float64
	MatchedEventID string
	Candidate      Candidate
}
