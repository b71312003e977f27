package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/prior-auth/paw-app/paw/constants"
	"github.com/prior-auth/paw-app/paw/coordinator"
	customErrors "github.com/prior-auth/paw-app/paw/errors"
	"github.com/prior-auth/paw-app/paw/models"
	"github.com/prior-auth/paw-app/paw/planner"
	"github.com/prior-auth/paw-app/paw/validation"
)

// Handlers carries the engine components behind the HTTP surface.
type Handlers struct {
	Coordinator *coordinator.Coordinator
}

func NewHandlers(co *coordinator.Coordinator) *Handlers {
	return &Handlers{Coordinator: co}
}

// ActionResponse is returned by the action endpoints: the delta the engine
// produced plus the case with that delta already applied.
type ActionResponse struct {
	Delta *models.Delta `json:"delta"`
	Case  *models.Case  `json:"case"`
}

type ErrResponse struct {
	HTTPStatusCode int    `json:"-"`
	Err            string `json:"error"`
}

func (e *ErrResponse) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.HTTPStatusCode)
	return nil
}

func errInvalidRequest(err error) render.Renderer {
	return &ErrResponse{HTTPStatusCode: http.StatusBadRequest, Err: err.Error()}
}

func errPrecondition(err error) render.Renderer {
	return &ErrResponse{HTTPStatusCode: http.StatusUnprocessableEntity, Err: err.Error()}
}

// decodeCase binds the request body to a case and checks it against the
// route's case id.
func decodeCase(r *http.Request) (*models.Case, render.Renderer) {
	var c models.Case
	if err := render.DecodeJSON(r.Body, &c); err != nil {
		return nil, errInvalidRequest(err)
	}
	if caseID := chi.URLParam(r, "caseID"); caseID != "" && c.ID != caseID {
		return nil, &ErrResponse{
			HTTPStatusCode: http.StatusBadRequest,
			Err:            "case id in body does not match request path",
		}
	}
	return &c, nil
}

func (h *Handlers) NextAction(w http.ResponseWriter, r *http.Request) {
	c, errResp := decodeCase(r)
	if errResp != nil {
		render.Render(w, r, errResp)
		return
	}
	delta, err := h.Coordinator.ExecuteNextAction(r.Context(), c)
	if err != nil {
		render.Render(w, r, preconditionRenderer(err))
		return
	}
	render.JSON(w, r, &ActionResponse{Delta: delta, Case: delta.Apply(c)})
}

func (h *Handlers) Recover(w http.ResponseWriter, r *http.Request) {
	c, errResp := decodeCase(r)
	if errResp != nil {
		render.Render(w, r, errResp)
		return
	}
	delta, err := h.Coordinator.ExecuteRecoveryAction(r.Context(), c)
	if err != nil {
		render.Render(w, r, preconditionRenderer(err))
		return
	}
	render.JSON(w, r, &ActionResponse{Delta: delta, Case: delta.Apply(c)})
}

func (h *Handlers) PayerStatus(w http.ResponseWriter, r *http.Request) {
	c, errResp := decodeCase(r)
	if errResp != nil {
		render.Render(w, r, errResp)
		return
	}
	payer := chi.URLParam(r, "payer")
	delta, err := h.Coordinator.CheckPayerStatus(r.Context(), c, payer)
	if err != nil {
		render.Render(w, r, preconditionRenderer(err))
		return
	}
	render.JSON(w, r, &ActionResponse{Delta: delta, Case: delta.Apply(c)})
}

func (h *Handlers) Validate(w http.ResponseWriter, r *http.Request) {
	c, errResp := decodeCase(r)
	if errResp != nil {
		render.Render(w, r, errResp)
		return
	}
	render.JSON(w, r, validation.ValidateCase(r.Context(), c))
}

// ClassifyDenial classifies the first denied payer on the case without
// executing any recovery action.
func (h *Handlers) ClassifyDenial(w http.ResponseWriter, r *http.Request) {
	c, errResp := decodeCase(r)
	if errResp != nil {
		render.Render(w, r, errResp)
		return
	}
	for _, payer := range c.PayerSequence {
		state := c.State(payer)
		if state.Status == models.StatusDenied {
			render.JSON(w, r, planner.Classify(state, c))
			return
		}
	}
	render.Render(w, r, &ErrResponse{
		HTTPStatusCode: http.StatusNotFound,
		Err:            "no denied payer on case",
	})
}

// preconditionRenderer maps the typed precondition errors to 422 and
// everything else to 400.
func preconditionRenderer(err error) render.Renderer {
	switch err.(type) {
	case *customErrors.NoStrategyError, *customErrors.NoReferenceError:
		return errPrecondition(err)
	default:
		return errInvalidRequest(err)
	}
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"status": "ok"})
}

func getVersion(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]string{"version": constants.Version})
}
