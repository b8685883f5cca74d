package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/openlearn/engage/internal/interval"
	"github.com/openlearn/engage/internal/middleware"
	"github.com/openlearn/engage/internal/roster"
)

// RosterHandlers holds dependencies for roster HTTP handlers.
type RosterHandlers struct {
	store  roster.Store
	logger *slog.Logger
}

// NewRosterHandlers creates a new RosterHandlers instance.
func NewRosterHandlers(store roster.Store, logger *slog.Logger) *RosterHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &RosterHandlers{
		store:  store,
		logger: logger,
	}
}

// CourseListResponse is the response for the course listing.
type CourseListResponse struct {
	Courses []roster.CourseSummary `json:"courses"`
	Count   int                    `json:"count"`
}

// EngagementResponse is the response for roster engagement reads.
type EngagementResponse struct {
	Results []roster.EngagementRow `json:"results"`
	Count   int                    `json:"count"`
}

// ModuleResponse is the response for module engagement reads.
type ModuleResponse struct {
	Results []roster.ModuleRow `json:"results"`
	Count   int                `json:"count"`
}

// ListCourses handles GET /courses - lists courses with loaded engagement data.
// Non-staff tokens only see the courses their claims grant.
func (h *RosterHandlers) ListCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := h.store.ListCourses(r.Context())
	if err != nil {
		h.logger.Error("failed to list courses", "error", err)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to list courses")
		return
	}

	if claims := GetClaims(r.Context()); claims != nil && !claims.Staff {
		visible := courses[:0]
		for _, c := range courses {
			if claims.AllowsCourse(c.CourseID) {
				visible = append(visible, c)
			}
		}
		courses = visible
	}

	writeJSON(w, r.Context(), http.StatusOK, CourseListResponse{
		Courses: courses,
		Count:   len(courses),
	})
}

// GetEngagement handles GET /engagement - reads a course roster's engagement
// counters for one period. Query parameters:
//
//	course_id     (required)
//	interval_type (optional, default daily)
//	end_date      (optional, default latest loaded period)
//	username      (optional)
//	limit, offset (optional)
func (h *RosterHandlers) GetEngagement(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	courseID := query.Get("course_id")
	if courseID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "course_id is required")
		return
	}

	if !h.authorizeCourse(w, r, courseID) {
		return
	}

	intervalType := query.Get("interval_type")
	if intervalType == "" {
		intervalType = string(interval.TypeDaily)
	}
	typ, err := interval.ParseType(intervalType)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidIntervalType)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidIntervalType, "interval_type must be one of: daily, weekly, all")
		return
	}

	endDate := query.Get("end_date")
	if endDate != "" && !validDate(endDate) {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidDate)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidDate, "end_date must be YYYY-MM-DD")
		return
	}

	limit, offset, ok := parsePagination(w, r)
	if !ok {
		return
	}

	rows, err := h.store.ListEngagement(r.Context(), roster.EngagementFilter{
		CourseID:     courseID,
		IntervalType: string(typ),
		EndDate:      endDate,
		Username:     query.Get("username"),
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		if errors.Is(err, roster.ErrMissingCourseID) {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "course_id is required")
			return
		}
		h.logger.Error("failed to list engagement", "error", err, "course_id", courseID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to read engagement")
		return
	}

	writeJSON(w, r.Context(), http.StatusOK, EngagementResponse{
		Results: rows,
		Count:   len(rows),
	})
}

// GetModules handles GET /modules - reads per-module interaction counts.
// Query parameters:
//
//	course_id     (required)
//	username      (optional)
//	date          (optional, YYYY-MM-DD)
//	limit, offset (optional)
func (h *RosterHandlers) GetModules(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	courseID := query.Get("course_id")
	if courseID == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "course_id is required")
		return
	}

	if !h.authorizeCourse(w, r, courseID) {
		return
	}

	date := query.Get("date")
	if date != "" && !validDate(date) {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInvalidDate)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeInvalidDate, "date must be YYYY-MM-DD")
		return
	}

	limit, offset, ok := parsePagination(w, r)
	if !ok {
		return
	}

	rows, err := h.store.ListModuleCounts(r.Context(), roster.ModuleFilter{
		CourseID: courseID,
		Username: query.Get("username"),
		Date:     date,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		h.logger.Error("failed to list module counts", "error", err, "course_id", courseID)
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "Failed to read module engagement")
		return
	}

	writeJSON(w, r.Context(), http.StatusOK, ModuleResponse{
		Results: rows,
		Count:   len(rows),
	})
}

// authorizeCourse checks the request's claims against a course. Requests
// without claims (internal callers behind their own auth) are allowed.
func (h *RosterHandlers) authorizeCourse(w http.ResponseWriter, r *http.Request, courseID string) bool {
	claims := GetClaims(r.Context())
	if claims == nil || claims.AllowsCourse(courseID) {
		return true
	}
	ctx := middleware.SetErrorCode(r.Context(), ErrCodeForbidden)
	WriteError(w, ctx, http.StatusForbidden, ErrCodeForbidden, "Token does not grant access to this course")
	return false
}

// parsePagination reads limit and offset query parameters, writing an error
// response and returning ok=false when either is not a non-negative integer.
func parsePagination(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	query := r.URL.Query()

	if v := query.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "limit must be a non-negative integer")
			return 0, 0, false
		}
		limit = n
	}

	if v := query.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "offset must be a non-negative integer")
			return 0, 0, false
		}
		offset = n
	}

	return limit, offset, true
}

// validDate reports whether s is a calendar date in YYYY-MM-DD form.
func validDate(s string) bool {
	_, err := time.Parse(interval.DateLayout, s)
	return err == nil
}
