// Package progress はダウンロードツールの出力行から進捗率を取り出します。
package progress

import (
	"regexp"
	"strconv"
)

// 直前が数字の場合は一致させない（"1000%" の末尾3桁を拾わないため）。
var percentPattern = regexp.MustCompile(`(?:^|[^0-9])([0-9]{1,3})(?:\.[0-9]+)?%`)

// Parser は出力1行を進捗率に変換します。
type Parser interface {
	Parse(line string) (int, bool)
}

// ParserFunc は関数を Parser として扱うためのアダプターです。
type ParserFunc func(line string) (int, bool)

// Parse は f(line) を呼び出します。
func (f ParserFunc) Parse(line string) (int, bool) {
	return f(line)
}

// Default は yt-dlp の出力形式を前提とした Parser です。
var Default Parser = ParserFunc(Percent)

// Percent は行中で最初に現れる "NN%" を 0〜100 の整数として返します。
// 小数部は切り捨てます。該当しない行や範囲外の値は ok=false になります。
func Percent(line string) (int, bool) {
	m := percentPattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}
	value, err := strconv.Atoi(m[1])
	if err != nil || value < 0 || value > 100 {
		return 0, false
	}
	return value, true
}

// Clamp は値を [min, max] に収めます。
func Clamp(percent, min, max int) int {
	if percent < min {
		return min
	}
	if percent > max {
		return max
	}
	return percent
}
