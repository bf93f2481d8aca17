package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medivoyage/booking-api/internal/repository"
)

// DirectoryHandler serves the public provider directory that patients
// browse before opening an inquiry.  The route sits behind the response
// cache.
type DirectoryHandler struct {
	Users *repository.UserRepo
}

func NewDirectoryHandler(u *repository.UserRepo) *DirectoryHandler {
	if u == nil {
		panic("nil repository passed to NewDirectoryHandler")
	}
	return &DirectoryHandler{Users: u}
}

type providerPart struct {
	ID         uint64 `json:"id"`
	ClinicName string `json:"clinic_name"`
}

// List returns active providers ordered by clinic name.  Emails,
// commission rates and other account fields never leave this endpoint.
func (h *DirectoryHandler) List(c echo.Context) error {
	ctx, cancel := contextWithTimeout(c, 5*time.Second)
	defer cancel()

	providers, err := h.Users.ListProviders(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]providerPart, 0, len(providers))
	for _, p := range providers {
		part := providerPart{ID: p.ID}
		if p.ClinicName != nil {
			part.ClinicName = *p.ClinicName
		}
		out = append(out, part)
	}
	return c.JSON(http.StatusOK, echo.Map{"providers": out})
}
