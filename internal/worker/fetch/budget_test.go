package fetch

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// mockGetter はGetterのテスト用モック。
type mockGetter struct {
	bodies map[string]string
	errs   map[string]error
	calls  []string
}

func (m *mockGetter) Get(_ context.Context, rawURL string) (string, error) {
	m.calls = append(m.calls, rawURL)
	if err, ok := m.errs[rawURL]; ok {
		return "", err
	}
	return m.bodies[rawURL], nil
}

func TestBudget_CachesByCanonicalURL(t *testing.T) {
	g := &mockGetter{bodies: map[string]string{
		"https://www.bocholt.de/termin/1": "<p>20.02.2026</p>",
	}}
	b := NewBudget(g, 10, 5)

	body, ok := b.FetchDetail(context.Background(), "https://WWW.bocholt.de/termin/1?utm_source=x#top")
	if !ok || body != "<p>20.02.2026</p>" {
		t.Fatalf("初回取得 期待: 成功, 結果: (%q, %v)", body, ok)
	}
	body, ok = b.FetchDetail(context.Background(), "https://www.bocholt.de/termin/1")
	if !ok || body != "<p>20.02.2026</p>" {
		t.Fatalf("キャッシュ取得 期待: 成功, 結果: (%q, %v)", body, ok)
	}

	if len(g.calls) != 1 {
		t.Errorf("ネットワーク取得は1回であるべき, got %d", len(g.calls))
	}
	want := BudgetStats{Fetched: 1, Cached: 1}
	if diff := cmp.Diff(want, b.Stats()); diff != "" {
		t.Errorf("Stats mismatch (-want +got):\n%s", diff)
	}
}

func TestBudget_GlobalCap(t *testing.T) {
	g := &mockGetter{bodies: map[string]string{}}
	b := NewBudget(g, 2, 10)

	for _, u := range []string{"https://a.example/1", "https://b.example/1", "https://c.example/1"} {
		b.FetchDetail(context.Background(), u)
	}

	if len(g.calls) != 2 {
		t.Errorf("全体上限 期待: 2, 結果: %d", len(g.calls))
	}
	if got := b.Stats().DeniedGlobal; got != 1 {
		t.Errorf("DeniedGlobal 期待: 1, 結果: %d", got)
	}
}

func TestBudget_PerHostCapSharesRegistrableDomain(t *testing.T) {
	g := &mockGetter{bodies: map[string]string{}}
	b := NewBudget(g, 10, 2)

	urls := []string{
		"https://www.bocholt.de/a",
		"https://veranstaltungen.bocholt.de/b",
		"https://bocholt.de/c",
		"https://www.muensterland.com/d",
	}
	for _, u := range urls {
		b.FetchDetail(context.Background(), u)
	}

	want := []string{
		"https://www.bocholt.de/a",
		"https://veranstaltungen.bocholt.de/b",
		"https://www.muensterland.com/d",
	}
	if diff := cmp.Diff(want, g.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
	if got := b.Stats().DeniedHost; got != 1 {
		t.Errorf("DeniedHost 期待: 1, 結果: %d", got)
	}
}

func TestBudget_HostCapOverride(t *testing.T) {
	g := &mockGetter{bodies: map[string]string{}}
	b := NewBudget(g, 10, 1, WithHostCap(func(host string) int {
		if host == "www.bocholt.de" {
			return 3
		}
		return 0
	}))

	for i := 0; i < 4; i++ {
		b.FetchDetail(context.Background(), "https://www.bocholt.de/termin/"+string(rune('a'+i)))
	}
	if got := b.Stats().Fetched; got != 3 {
		t.Errorf("上書きされたホスト上限 期待: 3, 結果: %d", got)
	}
}

func TestBudget_FailureIsCached(t *testing.T) {
	g := &mockGetter{errs: map[string]error{
		"https://example.org/broken": errors.New("HTTP Error 500"),
	}}
	b := NewBudget(g, 10, 10)

	if _, ok := b.FetchDetail(context.Background(), "https://example.org/broken"); ok {
		t.Error("失敗した取得はokがfalseであるべき")
	}
	if _, ok := b.FetchDetail(context.Background(), "https://example.org/broken"); ok {
		t.Error("キャッシュされた失敗もokがfalseであるべき")
	}

	want := BudgetStats{Failed: 1, Cached: 1}
	if diff := cmp.Diff(want, b.Stats()); diff != "" {
		t.Errorf("Stats mismatch (-want +got):\n%s", diff)
	}
	if want.Used() != 1 {
		t.Errorf("Used 期待: 1, 結果: %d", want.Used())
	}
}

func TestBudget_EmptyURL(t *testing.T) {
	g := &mockGetter{}
	b := NewBudget(g, 10, 10)
	if _, ok := b.FetchDetail(context.Background(), ""); ok {
		t.Error("空URLは取得しない")
	}
	if len(g.calls) != 0 {
		t.Errorf("ネットワーク取得は0回であるべき, got %d", len(g.calls))
	}
}

func TestHostKey(t *testing.T) {
	tests := []struct {
		name string
		host string
		want string
	}{
		{name: "サブドメイン", host: "www.bocholt.de", want: "bocholt.de"},
		{name: "登録ドメイン", host: "bocholt.de", want: "bocholt.de"},
		{name: "大文字と末尾ドット", host: "Kultur.Bocholt.DE.", want: "bocholt.de"},
		{name: "複合TLD", host: "events.example.co.uk", want: "example.co.uk"},
		{name: "空", host: "", want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HostKey(tt.host); got != tt.want {
				t.Errorf("HostKey(%q) 期待: %q, 結果: %q", tt.host, tt.want, got)
			}
		})
	}

	if got := HostKeyOfURL("https://www.muensterland.com/tourismus"); got != "muensterland.com" {
		t.Errorf("HostKeyOfURL 結果: %q", got)
	}
}
