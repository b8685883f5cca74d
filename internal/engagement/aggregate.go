package engagement

import "sort"

// Aggregate folds one group's classified events into its engagement record.
// Returns nil for an empty group; empty groups never emit records.
//
// Events are stably sorted by entity id so repeated interactions with the
// same content item are adjacent; within each entity run the original arrival
// order is preserved. "Problems attempted" and "videos played" count distinct
// entities via a first-occurrence gate, while attempt and forum/textbook
// counters count every event. The last-viewed subsection is the marker path
// with the greatest timestamp across the whole group; on equal timestamps the
// earlier-seen marker wins.
func Aggregate(key GroupKey, events []ClassifiedEvent) *Record {
	if len(events) == 0 {
		return nil
	}

	sorted := make([]ClassifiedEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].EntityID < sorted[j].EntityID
	})

	rec := &Record{Key: key}
	datesActive := make(map[string]struct{})
	maxTimestamp := ""
	haveTimestamp := false

	for start := 0; start < len(sorted); {
		end := start
		for end < len(sorted) && sorted[end].EntityID == sorted[start].EntityID {
			end++
		}

		isFirst := true
		isCorrect := false
		for _, ev := range sorted[start:end] {
			switch ev.Category {
			case CategoryProblemCheck:
				if isFirst {
					rec.ProblemsAttempted++
				}
				rec.ProblemAttempts++
				if !isCorrect && ev.Info.Correct {
					isCorrect = true
				}
			case CategoryVideoPlay:
				if isFirst {
					rec.VideosPlayed++
				}
			case CategoryForumComment:
				rec.ForumComments++
			case CategoryForumResponse:
				rec.ForumResponses++
			case CategoryForumPost:
				rec.ForumPosts++
			case CategoryTextbookPage:
				rec.TextbookPagesViewed++
			case CategorySubsectionViewed:
				if !haveTimestamp || ev.Info.Timestamp > maxTimestamp {
					rec.LastSubsectionViewed = ev.Info.Path
					maxTimestamp = ev.Info.Timestamp
					haveTimestamp = true
				}
			}

			if isFirst {
				isFirst = false
			}
			datesActive[ev.Date] = struct{}{}
		}
		if isCorrect {
			rec.ProblemsCorrect++
		}

		start = end
	}

	rec.DaysActive = len(datesActive)
	return rec
}
