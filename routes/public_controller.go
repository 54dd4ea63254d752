package routes

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/mbolis/leadbox/app"
	"github.com/mbolis/leadbox/emi"
	"github.com/mbolis/leadbox/httpx"
	"github.com/mbolis/leadbox/log"
	"github.com/mbolis/leadbox/model"
	"github.com/mbolis/leadbox/routes/middlewares"
)

func Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]any{"status": "ok"})
}

// SubmitForm accepts either {formType, data} on /submissions or the bare
// data object on /forms/{formType}.
func SubmitForm(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := model.SubmitRequest{}

		var err error
		if formType := chi.URLParam(r, "formType"); formType != "" {
			req.FormType = model.FormType(formType)
			err = render.DecodeJSON(r.Body, &req.Data)
		} else {
			err = render.DecodeJSON(r.Body, &req)
		}
		if err != nil {
			decodeError(w, r, err)
			return
		}

		if !req.FormType.Valid() {
			httpx.LogStatusMsg(w, r, http.StatusBadRequest, log.DebugLevel,
				"submit.form_type", "Invalid form type")
			return
		}
		if req.Data == nil {
			httpx.LogStatusMsg(w, r, http.StatusBadRequest, log.DebugLevel,
				"submit.data", "Missing form data")
			return
		}

		sub, err := app.Submissions.Create(req.FormType, req.Data)
		if err != nil {
			httpx.LogInternalError(w, r, "store.create_submission", err)
			return
		}

		log.Infof("submit.ok: %s %s", sub.FormType, sub.ID)
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"success":    true,
			"message":    "Form submitted successfully",
			"id":         sub.ID,
			"submission": sub,
		})
	}
}

func decodeError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		httpx.LogStatusMsg(w, r, http.StatusRequestEntityTooLarge, log.DebugLevel,
			"request.parse_body", "Request body larger than %d bytes", tooLarge.Limit)
	case errors.Is(err, io.EOF):
		httpx.LogStatusMsg(w, r, http.StatusBadRequest, log.DebugLevel,
			"request.parse_body", "Empty request body")
	default:
		httpx.LogStatus(w, r, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
	}
}

func GetVisitCounter(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, app.Visits.Get())
	}
}

// CountVisit is the explicit page-view beacon for client-side navigation.
func CountVisit(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counter, err := app.Visits.IncrementForSession(middlewares.VisitorID(r))
		if err != nil {
			httpx.LogInternalError(w, r, "store.increment_counter", err)
			return
		}
		render.JSON(w, r, counter)
	}
}

type emiRequest struct {
	emi.Loan
	Schedule bool `json:"schedule"`
}

func CalculateEMI(w http.ResponseWriter, r *http.Request) {
	req := emiRequest{}
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		decodeError(w, r, err)
		return
	}

	result, err := emi.Calculate(req.Loan)
	if err != nil {
		httpx.LogStatusMsg(w, r, http.StatusBadRequest, log.DebugLevel, "emi.validate", "%s", err)
		return
	}

	resp := map[string]any{
		"loan":   req.Loan,
		"result": result,
	}
	if req.Schedule {
		schedule, err := emi.Schedule(req.Loan)
		if err != nil {
			httpx.LogInternalError(w, r, "emi.schedule", err)
			return
		}
		resp["schedule"] = schedule
	}
	render.JSON(w, r, resp)
}
