package model

import (
	"strconv"
	"time"
)

// Inboxの列名。表形式のストアではこの順序で書き込む。
const (
	ColStatus              = "status"
	ColIDSuggestion        = "id_suggestion"
	ColTitle               = "title"
	ColDate                = "date"
	ColEndDate             = "endDate"
	ColTime                = "time"
	ColCity                = "city"
	ColLocation            = "location"
	ColKategorieSuggestion = "kategorie_suggestion"
	ColURL                 = "url"
	ColDescription         = "description"
	ColSourceName          = "source_name"
	ColSourceURL           = "source_url"
	ColMatchScore          = "match_score"
	ColMatchedEventID      = "matched_event_id"
	ColNotes               = "notes"
	ColCreatedAt           = "created_at"
)

// QueueColumns はInboxの固定列順序。
var QueueColumns = []string{
	ColStatus,
	ColIDSuggestion,
	ColTitle,
	ColDate,
	ColEndDate,
	ColTime,
	ColCity,
	ColLocation,
	ColKategorieSuggestion,
	ColURL,
	ColDescription,
	ColSourceName,
	ColSourceURL,
	ColMatchScore,
	ColMatchedEventID,
	ColNotes,
	ColCreatedAt,
}

// CreatedAtLayout はcreated_at列の書式。
const CreatedAtLayout = "2006-01-02 15:04:05"

// FinalStatuses はアーカイブ対象となる終端ステータス。
var FinalStatuses = []string{"übernommen", "verworfen"}

// QueueItem はモデレーション待ちのInbox行を表す。
// RowIDは永続化済みの行のみ0以外になる。
type QueueItem struct {
	RowID               int64     `json:"row_id,omitempty"`
	Status              string    `json:"status"`
	IDSuggestion        string    `json:"id_suggestion"`
	Title               string    `json:"title"`
	Date                string    `json:"date"`
	EndDate             string    `json:"endDate"`
	Time                string    `json:"time"`
	City                string    `json:"city"`
	Location            string    `json:"location"`
	KategorieSuggestion string    `json:"kategorie_suggestion"`
	URL                 string    `json:"url"`
	Description         string    `json:"description"`
	SourceName          string    `json:"source_name"`
	SourceURL           string    `json:"source_url"`
	MatchScore          float64   `json:"match_score"`
	MatchedEventID      string    `json:"matched_event_id"`
	Notes               string    `json:"notes"`
	CreatedAt           time.Time `json:"created_at"`
}

// Field は列名に対応する値を文字列で返す。
func (q QueueItem) Field(col string) string {
	switch col {
	case ColStatus:
		return q.Status
	case ColIDSuggestion:
		return q.IDSuggestion
	case ColTitle:
		return q.Title
	case ColDate:
		return q.Date
	case ColEndDate:
		return q.EndDate
	case ColTime:
		return q.Time
	case ColCity:
		return q.City
	case ColLocation:
		return q.Location
	case ColKategorieSuggestion:
		return q.KategorieSuggestion
	case ColURL:
		return q.URL
	case ColDescription:
		return q.Description
	case ColSourceName:
		return q.SourceName
	case ColSourceURL:
		return q.SourceURL
	case ColMatchScore:
		return strconv.FormatFloat(q.MatchScore, 'f', 2, 64)
	case ColMatchedEventID:
		return q.MatchedEventID
	case ColNotes:
		return q.Notes
	case ColCreatedAt:
		if q.CreatedAt.IsZero() {
			return ""
		}
		return q.CreatedAt.Format(CreatedAtLayout)
	}
	return ""
}

// SetField は列名に対応するフィールドに値を設定する。
// 未知の列名、または補完対象外の列はfalseを返す。
func (q *QueueItem) SetField(col, value string) bool {
	switch col {
	case ColDate:
		q.Date = value
	case ColEndDate:
		q.EndDate = value
	case ColTime:
		q.Time = value
	case ColCity:
		q.City = value
	case ColLocation:
		q.Location = value
	case ColURL:
		q.URL = value
	case ColDescription:
		q.Description = value
	case ColNotes:
		q.Notes = value
	default:
		return false
	}
	return true
}

// Row は固定列順序で値を並べた1行を返す。
func (q QueueItem) Row() []string {
	row := make([]string, len(QueueColumns))
	for i, col := range QueueColumns {
		row[i] = q.Field(col)
	}
	return row
}

// FieldValue は既存行の1フィールドへの書き込みを表す。
type FieldValue struct {
	Column string
	Value  string
}

// QueueUpdate は既存のInbox行に対する空フィールドの補完を表す。
type QueueUpdate struct {
	RowID  int64
	Fields []FieldValue
}
