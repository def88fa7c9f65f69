package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("JSONとして解析できません: %v\n出力: %s", err, buf.String())
	}
	return entry
}

func TestSetup_ReturnsJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	l := Setup(&buf, "info")

	l.Info("テストメッセージ", slog.String("source", "Stadt Bocholt"))

	entry := decodeLine(t, &buf)
	if entry["msg"] != "テストメッセージ" {
		t.Errorf("期待: msg=テストメッセージ, 結果: %v", entry["msg"])
	}
	if entry["source"] != "Stadt Bocholt" {
		t.Errorf("期待: source=Stadt Bocholt, 結果: %v", entry["source"])
	}
	if _, ok := entry["time"]; !ok {
		t.Error("time属性がありません")
	}
}

func TestSetup_Level(t *testing.T) {
	tests := []struct {
		name    string
		level   string
		logged  func(*slog.Logger)
		wantOut bool
	}{
		{name: "infoではdebugを出さない", level: "info", logged: func(l *slog.Logger) { l.Debug("x") }, wantOut: false},
		{name: "debugではdebugを出す", level: "debug", logged: func(l *slog.Logger) { l.Debug("x") }, wantOut: true},
		{name: "warnではinfoを出さない", level: "warn", logged: func(l *slog.Logger) { l.Info("x") }, wantOut: false},
		{name: "未知の値はinfo", level: "verbose", logged: func(l *slog.Logger) { l.Info("x") }, wantOut: true},
		{name: "errorではerrorを出す", level: "ERROR", logged: func(l *slog.Logger) { l.Error("x") }, wantOut: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.logged(Setup(&buf, tt.level))
			if got := buf.Len() > 0; got != tt.wantOut {
				t.Errorf("期待: 出力=%v, 結果: %v (%s)", tt.wantOut, got, buf.String())
			}
		})
	}
}

func TestSetupDefault_SetsGlobalLogger(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	SetupDefault(&buf, "info")
	slog.Default().Info("グローバル", slog.String("test_key", "test_val"))

	entry := decodeLine(t, &buf)
	if entry["test_key"] != "test_val" {
		t.Errorf("期待: test_key=test_val, 結果: %v", entry["test_key"])
	}
}

func TestWithRun(t *testing.T) {
	var buf bytes.Buffer
	l := WithRun(Setup(&buf, "info"), "run-123")

	l.Warn("ソースの取得に失敗しました", slog.Int("http_status", 503))

	entry := decodeLine(t, &buf)
	if entry["run_id"] != "run-123" {
		t.Errorf("期待: run_id=run-123, 結果: %v", entry["run_id"])
	}
	if entry["level"] != "WARN" {
		t.Errorf("期待: level=WARN, 結果: %v", entry["level"])
	}
	if entry["http_status"] != float64(503) {
		t.Errorf("期待: http_status=503, 結果: %v", entry["http_status"])
	}
}
