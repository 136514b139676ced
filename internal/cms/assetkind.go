package cms

import (
	"sort"
	"strings"
)

// AssetKind selects the upload policy and metadata table for an asset.
type AssetKind string

const (
	AssetGallery AssetKind = "gallery"
	AssetSlide   AssetKind = "slide"
	AssetReport  AssetKind = "report"
	AssetTeam    AssetKind = "team"
)

const (
	maxImageSize    = 5 << 20
	maxDocumentSize = 10 << 20
)

var imageTypes = []string{"image/jpeg", "image/jpg", "image/png", "image/gif", "image/webp"}

var documentTypes = []string{
	"application/pdf",
	"application/vnd.ms-powerpoint",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
}

// UploadPolicy is the validation and placement rule set for one AssetKind.
type UploadPolicy struct {
	Prefix          string
	Table           Table
	MaxSize         int64
	AllowedTypes    []string
	RequireGrouping bool
	AllowGrouping   bool
	RequireTitle    bool
}

var policies = map[AssetKind]UploadPolicy{
	AssetGallery: {
		Prefix:          "gallery",
		Table:           TableGalleryImages,
		MaxSize:         maxImageSize,
		AllowedTypes:    imageTypes,
		RequireGrouping: true,
		AllowGrouping:   true,
	},
	AssetSlide: {
		Prefix:       "slides",
		Table:        TableHeroSlides,
		MaxSize:      maxImageSize,
		AllowedTypes: imageTypes,
		RequireTitle: true,
	},
	AssetReport: {
		Prefix:       "performance-reports",
		Table:        TablePerformanceReports,
		MaxSize:      maxDocumentSize,
		AllowedTypes: documentTypes,
		RequireTitle: true,
	},
	AssetTeam: {
		Prefix:       "team-images",
		Table:        TableTeamImages,
		MaxSize:      maxImageSize,
		AllowedTypes: imageTypes,
	},
}

// ParseAssetKind resolves an asset kind name.
func ParseAssetKind(name string) (AssetKind, error) {
	k := AssetKind(strings.ToLower(strings.TrimSpace(name)))
	if _, ok := policies[k]; !ok {
		return "", invalid("kind", "unknown asset kind %q", name)
	}
	return k, nil
}

// AssetKinds lists every asset kind in name order.
func AssetKinds() []AssetKind {
	out := make([]AssetKind, 0, len(policies))
	for k := range policies {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// KindOfTable returns the asset kind stored in t.
func KindOfTable(t Table) (AssetKind, bool) {
	for k, p := range policies {
		if p.Table == t {
			return k, true
		}
	}
	return "", false
}

// Policy returns the upload policy for k. Unknown kinds yield a zero policy.
func (k AssetKind) Policy() UploadPolicy { return policies[k] }

// Allows reports whether contentType is on the policy's allow-list. MIME
// parameters (";charset=...") are ignored.
func (p UploadPolicy) Allows(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	for _, t := range p.AllowedTypes {
		if t == ct {
			return true
		}
	}
	return false
}
