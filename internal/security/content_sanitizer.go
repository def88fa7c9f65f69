// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextStripper はソース由来のHTML断片からタグを取り除き、プレーンテキストにする。
// bluemondayのStrictPolicyを使用し、タグは一切通過させない。
package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// TextStripper はHTMLタグ除去機能のインターフェースを定義する。
// フィード・HTML・JSONから取り込んだすべてのフィールドに対して使用される。
type TextStripper interface {
	// Strip はすべてのタグを除去したテキストを返す。
	// 除去したタグの位置には空白が挿入される。
	// script, styleの中身はテキストとしても残さない。
	// 出力のテキストはHTMLエスケープされた状態で返る。
	Strip(rawHTML string) string
}

// textStripper はTextStripperの実装。
// bluemondayのPolicyはスレッドセーフに使用できる。
type textStripper struct {
	policy *bluemonday.Policy
}

// NewTextStripper はTextStripperの新しいインスタンスを生成する。
func NewTextStripper() *textStripper {
	p := bluemonday.StrictPolicy()
	// "<p>a</p><p>b</p>" が "ab" に潰れないようにする
	p.AddSpaceWhenStrippingTag(true)

	return &textStripper{
		policy: p,
	}
}

// Strip はすべてのタグを除去したテキストを返す。
func (s *textStripper) Strip(rawHTML string) string {
	if rawHTML == "" {
		return ""
	}
	return s.policy.Sanitize(rawHTML)
}
