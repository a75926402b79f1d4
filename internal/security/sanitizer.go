// Package security は入力値の無害化を提供する。
//
// 従業員名・コース名などのテキストはタグを全て除去し、
// コース説明は最小限の書式タグのみを残す。
package security

import (
	"html"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer はユーザー入力の無害化インターフェース。
type Sanitizer interface {
	// Text はHTMLタグを全て除去したプレーンテキストを返す。前後の空白も除く。
	Text(s string) string
	// Description はコース説明向けに書式タグ（p, br, ul, ol, li, strong, em, a）のみ残す。
	Description(s string) string
	// ImageRef は画像参照として安全なURLまたはルート相対パスのみを返す。それ以外は空文字列。
	ImageRef(s string) string
}

type sanitizer struct {
	strict *bluemonday.Policy
	rich   *bluemonday.Policy
}

// NewSanitizer はSanitizerを生成する。ポリシーはスレッドセーフに共有できる。
func NewSanitizer() Sanitizer {
	rich := bluemonday.NewPolicy()
	rich.AllowElements("p", "br", "ul", "ol", "li", "strong", "em")
	rich.AllowAttrs("href").OnElements("a")
	rich.AllowURLSchemes("https")
	rich.AllowRelativeURLs(false)
	rich.AddTargetBlankToFullyQualifiedLinks(true)
	rich.RequireNoReferrerOnLinks(true)

	return &sanitizer{
		strict: bluemonday.StrictPolicy(),
		rich:   rich,
	}
}

// Text はタグを除去する。StrictPolicyはエスケープした文字列を返すため元に戻す。
func (s *sanitizer) Text(in string) string {
	return strings.TrimSpace(html.UnescapeString(s.strict.Sanitize(in)))
}

func (s *sanitizer) Description(in string) string {
	return strings.TrimSpace(s.rich.Sanitize(in))
}

func (s *sanitizer) ImageRef(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return ""
	}
	if strings.HasPrefix(in, "/") && !strings.HasPrefix(in, "//") {
		return in
	}
	u, err := url.Parse(in)
	if err != nil || u.Host == "" {
		return ""
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return ""
	}
	return u.String()
}
