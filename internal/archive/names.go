package archive

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/JakeFAU/crawl-archiver/internal/crawler"
)

const (
	maxNameLength   = 100
	maxDomainLength = 150
	timestampLayout = "20060102_150405"
	safeNameChars   = "-_.() abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// SafeName derives a portable file name stem from a page title, falling back
// to the URL path, "index" for the site root and "page" when nothing usable
// remains.
func SafeName(pageURL, title string) string {
	base := strings.TrimSpace(title)
	if base == "" {
		base = "index"
		if u, err := url.Parse(pageURL); err == nil {
			if p := strings.Trim(u.Path, "/"); p != "" {
				base = strings.ReplaceAll(p, "/", "_")
			}
		}
	}

	var b strings.Builder
	for _, r := range base {
		if strings.ContainsRune(safeNameChars, r) {
			b.WriteRune(r)
		}
	}
	name := b.String()
	if len(name) > maxNameLength {
		name = name[:maxNameLength]
	}
	name = strings.Trim(name, " .")
	if name == "" {
		return "page"
	}
	return name
}

// uniqueNamer hands out page file names that never collide within one
// archive, including on case-insensitive filesystems.
type uniqueNamer struct {
	seen map[string]struct{}
}

func newUniqueNamer() *uniqueNamer {
	return &uniqueNamer{seen: make(map[string]struct{})}
}

func (n *uniqueNamer) next(idx int, stem string) string {
	name := fmt.Sprintf("%03d_%s.md", idx, stem)
	for counter := 1; n.taken(name); counter++ {
		name = fmt.Sprintf("%03d_%s_%d.md", idx, stem, counter)
	}
	n.seen[strings.ToLower(name)] = struct{}{}
	return name
}

func (n *uniqueNamer) taken(name string) bool {
	_, ok := n.seen[strings.ToLower(name)]
	return ok
}

// ArchiveName builds "<domain>_<timestamp>_<suffix>.zip". The suffix comes
// from the random tail of id so concurrent crawls of one site never clash.
func ArchiveName(req crawler.Request, now time.Time, id string) string {
	suffix := strings.ReplaceAll(id, "-", "")
	if len(suffix) > 12 {
		suffix = suffix[len(suffix)-12:]
	}
	var b strings.Builder
	for _, r := range suffix {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	domain := strings.TrimLeft(req.Domain(), "_-")
	if len(domain) > maxDomainLength {
		domain = strings.TrimRight(domain[:maxDomainLength], "_-")
	}
	if domain == "" {
		domain = "site"
	}
	name := fmt.Sprintf("%s_%s", domain, now.UTC().Format(timestampLayout))
	if b.Len() > 0 {
		name += "_" + b.String()
	}
	return name + ".zip"
}
