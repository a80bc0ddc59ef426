package gen

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"regexp"
	"strconv"
	"strings"
)

var digits = regexp.MustCompile(`[0-9]`)

// alias names an import whose package name is taken by another import
func alias(importPath string) string {
	hash := sha256.Sum256([]byte(importPath))
	str := digits.ReplaceAllString(hex.EncodeToString(hash[:]), "")
	return str[:8]
}

// localName is the name a package is referred to by without an import alias. It is
// the last path element, ignoring a major version suffix.
func localName(importPath string) string {
	base := path.Base(importPath)
	if strings.HasPrefix(base, "v") {
		if _, err := strconv.Atoi(base[1:]); err == nil {
			base = path.Base(path.Dir(importPath))
		}
	}
	return strings.ReplaceAll(base, "-", "_")
}
