package routes

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/mbolis/leadbox/app"
	"github.com/mbolis/leadbox/httpx"
	"github.com/mbolis/leadbox/log"
	"github.com/mbolis/leadbox/model"
	"github.com/mbolis/leadbox/routes/middlewares"
	"github.com/mbolis/leadbox/store"
)

func ListSubmissions(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		offset, err := queryInt(r, "offset")
		if err != nil {
			httpx.LogStatusMsg(w, r, http.StatusBadRequest, log.DebugLevel, "request.query.offset", "Invalid offset")
			return
		}
		limit, err := queryInt(r, "limit")
		if err != nil {
			httpx.LogStatusMsg(w, r, http.StatusBadRequest, log.DebugLevel, "request.query.limit", "Invalid limit")
			return
		}

		var subs []model.FormSubmission
		if formType := r.URL.Query().Get("type"); formType != "" {
			subs = app.Submissions.ListByType(model.FormType(formType))
		} else {
			subs = app.Submissions.List()
		}

		render.JSON(w, r, map[string]any{
			"total":       len(subs),
			"submissions": store.Page(subs, offset, limit),
		})
	}
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err == nil && n < 0 {
		err = errors.New("negative")
	}
	return n, err
}

func GetSubmissionById(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		sub, ok := app.Submissions.Get(id)
		if !ok {
			httpx.LogNotFound(w, r, "get_submission", id)
			return
		}
		render.JSON(w, r, sub)
	}
}

func DeleteSubmission(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		deleted, err := app.Submissions.Delete(id)
		if err != nil {
			httpx.LogInternalError(w, r, "store.delete_submission", err)
			return
		}
		if !deleted {
			httpx.LogNotFound(w, r, "delete_submission", id)
			return
		}

		log.Infof("admin.delete_submission: %s by %s", id, middlewares.AdminUsername(r))
		w.WriteHeader(http.StatusNoContent)
	}
}

func GetStats(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := app.Submissions.Stats()
		render.JSON(w, r, map[string]any{
			"total":  stats.Total,
			"byType": stats.ByType,
			"recent": stats.Recent,
			"visits": app.Visits.Get(),
		})
	}
}

// ResetVisitCounter resets the counter on behalf of the admin identified by
// the bearer token. The body is optional.
func ResetVisitCounter(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := model.ResetRequest{}
		err := render.DecodeJSON(r.Body, &req)
		if err != nil && !errors.Is(err, io.EOF) {
			decodeError(w, r, err)
			return
		}
		if req.ResetTo != nil && *req.ResetTo < 0 {
			httpx.LogStatusMsg(w, r, http.StatusBadRequest, log.DebugLevel,
				"reset_counter.reset_to", "resetTo must not be negative")
			return
		}

		counter, err := app.Visits.Reset(req.ResetTo, req.Reason, middlewares.AdminUsername(r))
		if err != nil {
			httpx.LogInternalError(w, r, "store.reset_counter", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"success": true,
			"message": "Visit counter reset successfully",
			"counter": counter,
		})
	}
}
