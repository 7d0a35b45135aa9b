package shops

import (
	"sort"
	"strings"

	"book_spider/internal/models"

	"github.com/antzucaro/matchr"
)

const suggestThreshold = 0.85

// CollapsePublishers merges entries whose names differ only in case. The
// first spelling and id win, counts add up (an entry without a count counts
// once). The result is sorted by name.
func CollapsePublishers(in []models.PublisherInfo) []models.PublisherInfo {
	index := make(map[string]int, len(in))
	out := make([]models.PublisherInfo, 0, len(in))
	for _, p := range in {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			continue
		}
		n := p.Count
		if n <= 0 {
			n = 1
		}
		key := strings.ToLower(name)
		if i, ok := index[key]; ok {
			out[i].Count += n
			continue
		}
		index[key] = len(out)
		out = append(out, models.PublisherInfo{Name: name, ID: p.ID, Count: n})
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if a != b {
			return a < b
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// FindPublisher resolves a typed name against a persisted list. Without an
// exact case-insensitive match it returns the closest names instead.
func FindPublisher(list []models.PublisherInfo, name string) (models.PublisherInfo, []string, bool) {
	name = strings.TrimSpace(name)
	for _, p := range list {
		if strings.EqualFold(p.Name, name) {
			return p, nil, true
		}
	}

	type scored struct {
		name  string
		score float64
	}
	var cands []scored
	lower := strings.ToLower(name)
	for _, p := range list {
		s := matchr.JaroWinkler(lower, strings.ToLower(p.Name), false)
		if s >= suggestThreshold {
			cands = append(cands, scored{p.Name, s})
		}
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].score > cands[j].score })
	if len(cands) > 3 {
		cands = cands[:3]
	}
	suggestions := make([]string, 0, len(cands))
	for _, c := range cands {
		suggestions = append(suggestions, c.name)
	}
	return models.PublisherInfo{}, suggestions, false
}
