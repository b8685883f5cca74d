package engagement

import (
	"sort"
	"strconv"
	"strings"

	"github.com/openlearn/engage/internal/eventlog"
)

// Module categories for the per-module interaction counter.
const (
	ModuleProblem = "problem"
	ModuleVideo   = "video"
	ModuleForum   = "forum"
)

// ModuleInteraction is one raw event resolved to a content module for the
// per-module counter. Unlike engagement records, module interactions are
// always bucketed by the event's own date.
type ModuleInteraction struct {
	Key      GroupKey
	Category string
	EntityID string
}

// ModuleCount is the summed interaction count for one
// (date, course, student, category, module) tuple.
type ModuleCount struct {
	Key      GroupKey
	Category string
	EntityID string
	Count    int
}

// ClassifyModule resolves a raw event to a module interaction, or nil when
// the event does not target an identifiable module. This shares the
// engagement taxonomy but applies none of the first-occurrence gating:
// downstream counting is raw summation.
func ClassifyModule(ev *eventlog.Event) *ModuleInteraction {
	username := strings.TrimSpace(ev.Username)
	if username == "" {
		return nil
	}
	if ev.EventType == "" {
		return nil
	}
	courseID := ev.CourseID()
	if courseID == "" {
		return nil
	}
	data, err := ev.Data()
	if err != nil {
		return nil
	}
	date, err := ev.DateString()
	if err != nil {
		return nil
	}

	var category, entityID string
	switch {
	case ev.EventType == "problem_check":
		if ev.EventSource != "server" {
			return nil
		}
		category = ModuleProblem
		entityID, _ = data["problem_id"].(string)
	case ev.EventType == "play_video":
		category = ModuleVideo
		entityID, _ = data["id"].(string)
	case strings.HasPrefix(ev.EventType, "edx.forum."):
		category = ModuleForum
		entityID, _ = data["commentable_id"].(string)
	default:
		return nil
	}

	if entityID == "" {
		return nil
	}

	return &ModuleInteraction{
		Key:      GroupKey{PeriodKey: date, CourseID: courseID, Username: username},
		Category: category,
		EntityID: entityID,
	}
}

// CountModules sums interactions per (key, category, module) tuple. The
// result is sorted by key, category, and module id for deterministic output.
func CountModules(interactions []ModuleInteraction) []ModuleCount {
	type countKey struct {
		key      GroupKey
		category string
		entityID string
	}
	totals := make(map[countKey]int)
	for _, in := range interactions {
		totals[countKey{in.Key, in.Category, in.EntityID}]++
	}

	counts := make([]ModuleCount, 0, len(totals))
	for k, n := range totals {
		counts = append(counts, ModuleCount{
			Key:      k.key,
			Category: k.category,
			EntityID: k.entityID,
			Count:    n,
		})
	}
	sort.Slice(counts, func(i, j int) bool {
		a, b := counts[i], counts[j]
		if a.Key != b.Key {
			if a.Key.PeriodKey != b.Key.PeriodKey {
				return a.Key.PeriodKey < b.Key.PeriodKey
			}
			if a.Key.CourseID != b.Key.CourseID {
				return a.Key.CourseID < b.Key.CourseID
			}
			return a.Key.Username < b.Key.Username
		}
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		return a.EntityID < b.EntityID
	})
	return counts
}

// Row flattens a module count into the field order the warehouse load expects.
func (c *ModuleCount) Row() []string {
	return []string{
		c.Key.CourseID,
		c.Key.Username,
		c.Key.PeriodKey,
		c.Category,
		c.EntityID,
		strconv.Itoa(c.Count),
	}
}
