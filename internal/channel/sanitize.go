package channel

import "strings"

const maxErrorKeyLen = 255

var punctuationStripTable = strings.NewReplacer(
	".", "",
	":", "",
	";", "",
	",", "",
	"*", "",
	"+", "",
	"?", "",
	"^", "",
	"$", "",
	"{", "",
	"}", "",
	"(", "",
	")", "",
	"|", "",
	"[", "",
	"]", "",
	"\\", "",
)

// sanitizeErrorKey builds the `<code>:<sanitized-message>` key every adapter
// uses, per §4.4.1: whitespace becomes underscores, the punctuation table
// above is stripped, and the result is truncated to 255 chars. Every adapter
// routes through this one function so the table stays canonical (§9 Open
// Question resolved by fixing one table and sharing it).
func sanitizeErrorKey(code, message string) string {
	sanitized := punctuationStripTable.Replace(message)
	sanitized = strings.Join(strings.Fields(sanitized), "_")

	key := code + ":" + sanitized
	if len(key) > maxErrorKeyLen {
		key = key[:maxErrorKeyLen]
	}
	return key
}
