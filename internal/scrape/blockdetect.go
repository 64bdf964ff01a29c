package scrape

import (
	"net/http"
	"strings"
)

// BlockType describes why a fetched page is not the real page.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
	BlockLoginWall  BlockType = "login_wall"
)

// blockRule matches a lowercased body. maxBody limits the rule to pages
// shorter than that many bytes; zero means any size.
type blockRule struct {
	kind    BlockType
	maxBody int
	all     []string
	any     []string
}

func (r blockRule) match(lower string) bool {
	if r.maxBody > 0 && len(lower) >= r.maxBody {
		return false
	}
	for _, m := range r.all {
		if !strings.Contains(lower, m) {
			return false
		}
	}
	if len(r.any) == 0 {
		return len(r.all) > 0
	}
	for _, m := range r.any {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// blockRules are checked in order; the first match wins.
var blockRules = []blockRule{
	{kind: BlockCloudflare, any: []string{"checking your browser", "cf-browser-verification"}},
	{kind: BlockCloudflare, all: []string{"cloudflare", "challenge"}},
	{kind: BlockCaptcha, any: []string{"captcha"}},
	{kind: BlockJSShell, maxBody: 2000, all: []string{"<noscript", "javascript"}},
	{kind: BlockJSShell, maxBody: 2000, any: []string{`meta http-equiv="refresh"`}},
	{kind: BlockLoginWall, maxBody: 20000, any: []string{"sign in to continue", "log in to continue", "join now to see"}},
}

// DetectBlock reports whether resp and its body are an anti-bot
// interstitial or login wall instead of page content.
func DetectBlock(resp *http.Response, body []byte) (bool, BlockType) {
	if resp == nil {
		return false, BlockNone
	}

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable {
		h := resp.Header
		if h.Get("cf-ray") != "" || h.Get("cf-cache-status") != "" || strings.EqualFold(h.Get("server"), "cloudflare") {
			return true, BlockCloudflare
		}
	}

	lower := strings.ToLower(string(body))
	for _, r := range blockRules {
		if r.match(lower) {
			return true, r.kind
		}
	}
	return false, BlockNone
}
