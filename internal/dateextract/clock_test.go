package dateextract

import "testing"

func TestExtractTime(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{name: "Uhr付き", text: "Beginn 19:30 Uhr", want: "19:30"},
		{name: "ドット区切り", text: "ab 19.30 Uhr", want: "19:30"},
		{name: "範囲 Uhr両側", text: "Freitag, 20. Februar, 19:00 Uhr – 22:00 Uhr, Rathaus", want: "19:00–22:00"},
		{name: "範囲 bis", text: "von 10:00 bis 16:00 Uhr", want: "10:00–16:00"},
		{name: "同じ時刻の範囲", text: "18:00 - 18:00 Uhr", want: "18:00"},
		{name: "Uhrなしの時刻", text: "Einlass 18:30, Start 19:00", want: "18:30"},
		{name: "Uhr付きが優先", text: "Stand 08:15 - Konzert um 20:00 Uhr", want: "20:00"},
		{name: "時が範囲外", text: "25:00 Uhr", want: ""},
		{name: "分が範囲外", text: "um 19:75 Uhr", want: ""},
		{name: "1桁の時", text: "um 9:05 Uhr", want: "09:05"},
		{name: "時刻なし", text: "Stadtfest", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractTime(tt.text); got != tt.want {
				t.Errorf("ExtractTime(%q) 期待: %q, 結果: %q", tt.text, tt.want, got)
			}
		})
	}
}

func TestISOParts(t *testing.T) {
	tests := []struct {
		in       string
		wantDate string
		wantTime string
	}{
		{in: "2026-03-10T19:30:00+01:00", wantDate: "2026-03-10", wantTime: "19:30"},
		{in: "2026-03-10T19:30:00Z", wantDate: "2026-03-10", wantTime: "19:30"},
		{in: "2026-03-10", wantDate: "2026-03-10", wantTime: ""},
		{in: "2026-02-30T10:00", wantDate: "", wantTime: "10:00"},
		{in: "10.03.2026", wantDate: "", wantTime: ""},
		{in: "", wantDate: "", wantTime: ""},
	}
	for _, tt := range tests {
		if got := ISODatePart(tt.in); got != tt.wantDate {
			t.Errorf("ISODatePart(%q) 期待: %q, 結果: %q", tt.in, tt.wantDate, got)
		}
		if got := ISOTimePart(tt.in); got != tt.wantTime {
			t.Errorf("ISOTimePart(%q) 期待: %q, 結果: %q", tt.in, tt.wantTime, got)
		}
	}
}

func TestSplitDateTime(t *testing.T) {
	tests := []struct {
		name   string
		start  string
		end    string
		wantD1 string
		wantD2 string
		wantT  string
	}{
		{name: "同日の開始終了", start: "2026-03-10T19:00", end: "2026-03-10T22:00", wantD1: "2026-03-10", wantD2: "", wantT: "19:00–22:00"},
		{name: "複数日", start: "2026-03-10T19:00", end: "2026-03-12T22:00", wantD1: "2026-03-10", wantD2: "2026-03-12", wantT: "19:00"},
		{name: "日付のみ", start: "2026-03-10", end: "", wantD1: "2026-03-10", wantD2: "", wantT: ""},
		{name: "終了が開始より前", start: "2026-03-10", end: "2026-03-01", wantD1: "2026-03-10", wantD2: "", wantT: ""},
		{name: "終了が開始より前の時刻付き", start: "2026-03-10T19:00", end: "2026-03-01T22:00", wantD1: "2026-03-10", wantD2: "", wantT: "19:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d1, d2, tm := SplitDateTime(tt.start, tt.end)
			if d1 != tt.wantD1 || d2 != tt.wantD2 || tm != tt.wantT {
				t.Errorf("期待: (%q, %q, %q), 結果: (%q, %q, %q)", tt.wantD1, tt.wantD2, tt.wantT, d1, d2, tm)
			}
		})
	}
}
