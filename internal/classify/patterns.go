package classify

import (
	"regexp"
	"strings"
)

// 語境界。RE2の \b はASCIIのみを単語文字とみなすため、ウムラウトやßを含む語では使えない。
const (
	leadBoundary  = `(?:^|[^\p{L}\p{N}_])`
	trailBoundary = `(?:[^\p{L}\p{N}_]|$)`
)

// notPublicPatterns は非公開の集まりを示す表現。
var notPublicPatterns = []string{
	`\bnur\s+für\s+mitglieder`,
	`\bmitgliederversammlung`,
	`\bjahreshauptversammlung`,
	`\bvorstandssitzung`,
	`\bnicht[-\s]?öffentlich`,
	`\bgeschlossene\s+gesellschaft\b`,
	`\bnur\s+für\s+geladene\s+gäste\b`,
	`\binterne\s+sitzung\b`,
}

// regularServicePatterns は定例の礼拝や窓口時間を示す表現。
// 礼拝は複合語 (Sonntagsgottesdienst) にも一致させる。
var regularServicePatterns = []string{
	`gottesdienst`,
	`\beucharistiefeier`,
	`\bandacht\b`,
	`\brosenkranz`,
	`\bsprechstunde`,
	`\bsprechzeiten\b`,
	`\böffnungszeiten\b`,
}

// nonEventPatterns はイベントではない可能性が高い表現。
var nonEventPatterns = []string{
	// 報道・インフラ
	`\bstau\b`,
	`\bverkehr\b`,
	`\bumleitung\b`,
	`\bsperr`,
	`\bvollsperr`,
	`\bbaustell`,
	`\bumbau`,
	`\bsanier`,
	`\bglasfaser`,
	`\bkanal\b`,
	`\btrinkwasser\b`,
	`\bhausbrunnen\b`,
	`\buntersuch`,
	`\bkontroll`,
	`\bmüllabfuhr\b`,
	`\babfuhr\b`,
	`\babfall\b`,
	`\bsitzung\b`,
	`\bausschuss\b`,
	`\bratssitzung\b`,
	`\bpressemitteilung\b`,
	`\bmitteilung\b`,
	`\bhinweis\b`,
	`\bwarn`,

	// 学校・内部向け
	`\belternabend\b`,
	`\bberufsberatung\b`,
	`\bberatung\b`,
	`\bklassen?\b`,
	`\bklasse\s*\d`,
	`\b9a\b`,
	`\b8b\b`,
	`\bunterricht\b`,
	`\bsprechstunde\b`,
	`\bprävention\b`,
	`\balkohol\b`,
	`\bdrogen\b`,
	`\bverkehrserziehung\b`,
	`\bschul\b`,
	`\bgymnasium\b`,
	`\brealschule\b`,
	`\bgesamtschule\b`,
}

// eventSignalPatterns は実際のイベントを強く示す表現。
var eventSignalPatterns = []string{
	`\bkonzert\b`,
	`\bjazz\b`,
	`\bklassik\b`,
	`\bopen\s*air\b`,
	`\bfestival\b`,
	`\bshow\b`,
	`\btheater\b`,
	`\bmusical\b`,
	`\bkabarett\b`,
	`\bcomedy\b`,
	`\blesung\b`,
	`\bpoetry\s*slam\b`,
	`\bslam\b`,
	`\bvortrag\b`,
	`\bseminar\b`,
	`\bworkshop\b`,
	`\bführung\b`,
	`\bstadtführung\b`,
	`\brundgang\b`,
	`\btour\b`,
	`\bausstellung\b`,
	`\bvernissage\b`,
	`\bmarkt\b`,
	`\bflohmarkt\b`,
	`\bkirmes\b`,
	`\bfest\b`,
	`\bparty\b`,
	`\bsport\b`,
	`\blauf\b`,
	`\bturnier\b`,
}

// compileAny はパターン群を1つの大文字小文字無視の正規表現にまとめる。
// パターン先頭と末尾の \b はUnicode対応の境界に置き換える。
func compileAny(patterns []string) *regexp.Regexp {
	parts := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if strings.HasPrefix(p, `\b`) {
			p = leadBoundary + p[2:]
		}
		if strings.HasSuffix(p, `\b`) {
			p = p[:len(p)-2] + trailBoundary
		}
		parts = append(parts, "(?:"+p+")")
	}
	return regexp.MustCompile("(?i)" + strings.Join(parts, "|"))
}

var (
	notPublicRe      = compileAny(notPublicPatterns)
	regularServiceRe = compileAny(regularServicePatterns)
	nonEventRe       = compileAny(nonEventPatterns)
	eventSignalRe    = compileAny(eventSignalPatterns)
)

// HasEventSignal はテキストにイベントを示す語が含まれるかを返す。
func HasEventSignal(text string) bool {
	return eventSignalRe.MatchString(text)
}

// IsNonEvent はテキストが非イベントのパターンに一致するかを返す。
func IsNonEvent(text string) bool {
	return nonEventRe.MatchString(text)
}
