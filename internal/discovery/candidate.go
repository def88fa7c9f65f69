package discovery

import (
	"context"
	"log/slog"

	"github.com/Stratos888/Bocholt-Erleben/internal/dedupe"
	"github.com/Stratos888/Bocholt-Erleben/internal/describe"
	"github.com/Stratos888/Bocholt-Erleben/internal/locinfer"
	"github.com/Stratos888/Bocholt-Erleben/internal/model"
	"github.com/Stratos888/Bocholt-Erleben/internal/parser"
	"github.com/Stratos888/Bocholt-Erleben/internal/textnorm"
)

// processCandidate は候補1件を補完・分類・重複判定し、監査ログを記録する。
func (p *Pipeline) processCandidate(ctx context.Context, r *run, src model.Source, c model.Candidate) {
	c.Title = textnorm.CleanText(c.Title)
	if c.Title == "" {
		return
	}

	if c.Date == "" && c.URL != "" && !sameURL(c.URL, src.URL) {
		p.enrichFromDetail(ctx, r, &c)
	}

	loc, tm := locinfer.Infer(c.Title, c.Description)
	if c.Location == "" {
		c.Location = loc
	}
	if c.Time == "" {
		c.Time = tm
	}

	disposition, reason := p.deps.Classifier.Classify(src.Type, src.Name, src.URL, c.Title, c.Description, c.Date)
	p.deps.Metrics.RecordDisposition(string(reason))

	entry := model.AuditEntry{
		RunID:       r.id,
		RunAt:       r.at,
		SourceName:  src.Name,
		SourceType:  src.Type,
		SourceURL:   src.URL,
		Disposition: disposition,
		Reason:      reason,
		Candidate:   c,
	}

	if disposition == model.DispositionRejected {
		r.summary.Rejected++
		r.audit = append(r.audit, entry)
		return
	}

	item := p.buildQueueItem(r, src, c, disposition, reason)
	res := r.dedupe.Apply(item)
	switch res.Outcome {
	case dedupe.OutcomeLive:
		entry.AlreadyLive = true
		entry.MatchScore = res.Score
		entry.MatchedEventID = res.MatchedEventID
		r.summary.Duplicates++
		p.deps.Metrics.RecordDuplicate("live")
	case dedupe.OutcomeQueued, dedupe.OutcomeBackfill:
		entry.AlreadyQueued = true
		entry.Backfilled = res.Outcome == dedupe.OutcomeBackfill
		r.summary.Duplicates++
		p.deps.Metrics.RecordDuplicate("queue")
		if entry.Backfilled {
			r.logger.Debug("Inbox行の空欄を補完しました",
				slog.String("title", c.Title),
				slog.Any("columns", res.Filled),
			)
		}
	case dedupe.OutcomeNew:
		entry.Written = true
	}
	r.audit = append(r.audit, entry)
}

// enrichFromDetail は日付のない候補の詳細ページを予算内で取得し、空の項目だけを埋める。
func (p *Pipeline) enrichFromDetail(ctx context.Context, r *run, c *model.Candidate) {
	body, ok := r.budget.FetchDetail(ctx, c.URL)
	if !ok {
		return
	}
	d := parser.ExtractDetail(body, c.URL, r.at)
	if d.Date == "" && d.Location == "" && d.Time == "" && d.Description == "" {
		return
	}
	if c.Date == "" && d.Date != "" {
		c.Date = d.Date
		if d.EndDate != "" && d.EndDate >= d.Date {
			c.EndDate = d.EndDate
		}
		c.AppendNote("event_date:detail")
	}
	if c.Time == "" {
		c.Time = d.Time
	}
	if c.Location == "" {
		c.Location = d.Location
	}
	if c.Description == "" {
		c.Description = d.Description
	}
}

// buildQueueItem は候補からInbox行を組み立てる。URLは正規化し、日付がなければnotesに目印を付ける。
func (p *Pipeline) buildQueueItem(r *run, src model.Source, c model.Candidate, disposition model.Disposition, reason model.Reason) model.QueueItem {
	city := p.cityFor(src)
	canonical := textnorm.CanonicalizeURL(c.URL)

	missing := ""
	if c.Date == "" {
		missing = EventDateMissingNote
	}

	desc := describe.Compose(describe.Input{
		Title:          c.Title,
		Date:           c.Date,
		Time:           c.Time,
		City:           city,
		Location:       c.Location,
		Category:       src.DefaultCategory,
		URL:            canonical,
		RawDescription: c.Description,
	})

	return model.QueueItem{
		Status:              string(disposition),
		IDSuggestion:        textnorm.MakeIDSuggestion(c.Title, c.Date, c.Time, src.URL),
		Title:               c.Title,
		Date:                c.Date,
		EndDate:             c.EndDate,
		Time:                c.Time,
		City:                city,
		Location:            c.Location,
		KategorieSuggestion: src.DefaultCategory,
		URL:                 canonical,
		Description:         desc,
		SourceName:          src.Name,
		SourceURL:           src.URL,
		Notes:               trimmedNotes(c.Notes, string(reason), missing),
		CreatedAt:           r.at,
	}
}
