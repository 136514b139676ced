package cms

import "sort"

// Table identifies a metadata table. The set is closed; names coming from
// the outside world are resolved only through ParseTable.
type Table string

const (
	TableEvents             Table = "events"
	TableGalleryImages      Table = "gallery_images"
	TableHeroSlides         Table = "hero_slides"
	TablePerformanceReports Table = "performance_reports"
	TableTeamImages         Table = "team_images"
	TableOfficials          Table = "officials"
	TableSchemes            Table = "schemes"
	TableAboutContent       Table = "about_content"
	TableNews               Table = "news"
	TableHospitals          Table = "hospitals"
	TableSiteStatistics     Table = "site_statistics"
)

type tableClass int

const (
	classGrouping tableClass = iota
	classAsset
	classContent
	classCounter
	classStats
)

var tableClasses = map[Table]tableClass{
	TableEvents:             classGrouping,
	TableGalleryImages:      classAsset,
	TableHeroSlides:         classAsset,
	TablePerformanceReports: classAsset,
	TableTeamImages:         classAsset,
	TableOfficials:          classContent,
	TableSchemes:            classContent,
	TableAboutContent:       classContent,
	TableNews:               classContent,
	TableHospitals:          classContent,
	TableSiteStatistics:     classCounter,
}

func init() {
	for _, s := range statSchemas {
		tableClasses[s.Series.Table()] = classStats
	}
}

// ParseTable resolves a table name.
func ParseTable(name string) (Table, error) {
	t := Table(name)
	if _, ok := tableClasses[t]; !ok {
		return "", invalid("table", "unknown table %q", name)
	}
	return t, nil
}

// IsContent reports whether t holds content records.
func (t Table) IsContent() bool { return known(t) && tableClasses[t] == classContent }

// IsAsset reports whether t holds asset rows.
func (t Table) IsAsset() bool { return known(t) && tableClasses[t] == classAsset }

// IsStat reports whether t holds a statistics series.
func (t Table) IsStat() bool { return known(t) && tableClasses[t] == classStats }

func known(t Table) bool {
	_, ok := tableClasses[t]
	return ok
}

// ContentTables lists the content tables in name order.
func ContentTables() []Table {
	var out []Table
	for t, c := range tableClasses {
		if c == classContent {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Tables lists every known table in name order.
func Tables() []Table {
	out := make([]Table, 0, len(tableClasses))
	for t := range tableClasses {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (t Table) String() string { return string(t) }

func mustContent(t Table) error {
	if !t.IsContent() {
		return invalid("table", "%s is not a content table", t)
	}
	return nil
}
