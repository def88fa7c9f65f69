package parser

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestExtractDetail(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Detail
	}{
		{
			name: "JSON-LDを優先",
			body: `<html><head>
<meta property="og:title" content="OG Titel">
<script type="application/ld+json">{"@type": "TheaterEvent", "name": "Der Besuch der alten Dame",
 "startDate": "2026-11-18T19:30", "location": {"name": "Stadttheater"}, "description": "Schauspiel"}</script>
</head><body><main>Ort: Aula</main></body></html>`,
			want: Detail{
				Title:       "Der Besuch der alten Dame",
				Date:        "2026-11-18",
				Time:        "19:30",
				Location:    "Stadttheater",
				Description: "Schauspiel",
			},
		},
		{
			name: "本文テキストから抽出",
			body: `<html><head><title>Stadtführung | Tourismus</title>
<meta property="og:description" content="Historischer Rundgang"></head>
<body><nav>Termine 01.01.</nav>
<article><h2>Stadtführung</h2>
<p>Sonntag, 8. November, Beginn 14:00 Uhr</p>
<p>Treffpunkt: Historisches Rathaus</p></article>
<footer>Stand 02.02.2026</footer></body></html>`,
			want: Detail{
				Title:       "Stadtführung | Tourismus",
				Date:        "2026-11-08",
				Time:        "14:00",
				Location:    "Historisches Rathaus",
				Description: "Historischer Rundgang",
			},
		},
		{
			name: "年なしの過去日付は翌年",
			body: `<html><body><main><h1>Neujahrsempfang</h1><p>am 10.01. um 11:00 Uhr</p></main></body></html>`,
			want: Detail{
				Title: "Neujahrsempfang",
				Date:  "2027-01-10",
				Time:  "11:00",
			},
		},
		{
			name: "複数日",
			body: `<html><body><main><h1>Kunstmarkt</h1><p>14.-15. November 2026</p></main></body></html>`,
			want: Detail{
				Title:   "Kunstmarkt",
				Date:    "2026-11-14",
				EndDate: "2026-11-15",
			},
		},
		{
			name: "手がかりなし",
			body: `<html><body><main><p>Seite nicht gefunden</p></main></body></html>`,
			want: Detail{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractDetail(tt.body, "https://www.example.org/e/1", testToday)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("詳細が一致しません (-期待 +結果):\n%s", diff)
			}
		})
	}
}
