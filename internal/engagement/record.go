package engagement

import "strconv"

// Record is the engagement summary for one (period, course, student) group.
// Immutable once emitted by Aggregate.
type Record struct {
	Key GroupKey

	DaysActive           int
	ProblemsAttempted    int
	ProblemAttempts      int
	ProblemsCorrect      int
	VideosPlayed         int
	ForumPosts           int
	ForumResponses       int
	ForumComments        int
	TextbookPagesViewed  int
	LastSubsectionViewed string
}

// Row flattens the record into the field order downstream sinks expect. The
// engine guarantees order and values only; serialization is the sink's
// concern.
func (r *Record) Row() []string {
	return []string{
		r.Key.PeriodKey,
		r.Key.CourseID,
		r.Key.Username,
		strconv.Itoa(r.DaysActive),
		strconv.Itoa(r.ProblemsAttempted),
		strconv.Itoa(r.ProblemAttempts),
		strconv.Itoa(r.ProblemsCorrect),
		strconv.Itoa(r.VideosPlayed),
		strconv.Itoa(r.ForumPosts),
		strconv.Itoa(r.ForumResponses),
		strconv.Itoa(r.ForumComments),
		strconv.Itoa(r.TextbookPagesViewed),
		r.LastSubsectionViewed,
	}
}
