package api

import (
	"net/http"

	"github.com/okian/pitchelo/internal/domain/model"
)

// CategoryLister lists the award categories.
type CategoryLister interface {
	Categories() []model.Category
}

// CategoryHandler handles category listing.
type CategoryHandler struct {
	deps CategoryLister
}

// NewCategoryHandler creates a new category handler.
func NewCategoryHandler(deps CategoryLister) *CategoryHandler {
	return &CategoryHandler{deps: deps}
}

// HandleList handles GET /categories.
func (h *CategoryHandler) HandleList(w http.ResponseWriter, _ *http.Request) {
	cats := h.deps.Categories()
	out := make([]categoryView, len(cats))
	for i, c := range cats {
		out[i] = categoryView{ID: string(c), Name: c.DisplayName()}
	}
	writeJSON(w, http.StatusOK, out)
}
