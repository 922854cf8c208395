package reply

import (
	"regexp"
	"strings"
)

// SilentReplyToken is the agent's way of saying no reply should be sent.
const SilentReplyToken = "NO_REPLY"

var (
	silentPrefix = regexp.MustCompile(`^\s*` + regexp.QuoteMeta(SilentReplyToken) + `(?:$|\W)`)
	silentSuffix = regexp.MustCompile(`\b` + regexp.QuoteMeta(SilentReplyToken) + `\b\W*$`)
)

// IsSilentReplyText reports whether text starts or ends with the silent
// reply token. The token must stand alone as a word: "NO_REPLY." and
// "ok NO_REPLY" are silent, "NO_REPLYING" is not.
func IsSilentReplyText(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	return silentPrefix.MatchString(text) || silentSuffix.MatchString(text)
}
