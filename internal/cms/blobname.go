package cms

import (
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

const (
	tokenAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	tokenLength   = 7
)

// BlobPath builds "{prefix}/{epochMillis}-{token}.{ext}" for fileName.
// The extension is lower-cased and reduced to alphanumerics; "bin" is used
// when none is left.
func BlobPath(prefix string, now time.Time, fileName string, random io.Reader) (string, error) {
	buf := make([]byte, tokenLength)
	if _, err := io.ReadFull(random, buf); err != nil {
		return "", fmt.Errorf("generating blob token: %w", err)
	}
	for i, b := range buf {
		buf[i] = tokenAlphabet[int(b)%len(tokenAlphabet)]
	}

	return fmt.Sprintf("%s/%d-%s.%s", strings.TrimSuffix(prefix, "/"), now.UnixMilli(), buf, extensionOf(fileName)), nil
}

func extensionOf(fileName string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(fileName), "."))
	var b strings.Builder
	for _, r := range ext {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "bin"
	}
	return b.String()
}
