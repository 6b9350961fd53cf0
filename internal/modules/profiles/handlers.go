package profiles

import (
	"errors"

	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/apperr"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/dto"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/httpx"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/repository"
	"github.com/gofiber/fiber/v2"
)

type Handler struct {
	service *ProfileService
}

func NewHandler(service *ProfileService) *Handler {
	return &Handler{service: service}
}

func notFound(err error, id string) error {
	if errors.Is(err, ErrUserNotFound) {
		return apperr.NotFound("User", id)
	}
	return err
}

func (h *Handler) GetOwn(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return apperr.AuthRequired("")
	}
	user, err := h.service.Get(c.UserContext(), userID)
	if err != nil {
		return notFound(err, "")
	}
	return httpx.OK(c, dto.NewUserResponse(user))
}

func (h *Handler) UpdateOwn(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return apperr.AuthRequired("")
	}
	var req dto.ProfileUpdateRequest
	if err := httpx.Bind(c, &req); err != nil {
		return err
	}
	user, err := h.service.UpdateProfile(c.UserContext(), userID, req)
	if err != nil {
		return notFound(err, "")
	}
	return httpx.OKWithMessage(c, dto.NewUserResponse(user), "Profile updated")
}

// List is the paginated user directory: ?page, ?limit, ?sort=-email and
// filters on email (substring), is_active, is_locked, email_confirmed.
func (h *Handler) List(c *fiber.Ctx) error {
	page := httpx.ParsePage(c)
	sort := httpx.ParseSort(c, SortFields, httpx.Sort{Field: "created_at", Desc: true})
	users, total, err := h.service.List(c.UserContext(), repository.ListOptions{
		Offset:    page.Offset(),
		Limit:     page.Limit,
		SortField: sort.Field,
		SortDesc:  sort.Desc,
		Filters:   httpx.ParseFilters(c, FilterFields),
	})
	if err != nil {
		return err
	}
	out := make([]dto.UserResponse, 0, len(users))
	for i := range users {
		out = append(out, dto.NewUserResponse(&users[i]))
	}
	return httpx.Paginated(c, out, page, total)
}

func (h *Handler) Get(c *fiber.Ctx) error {
	id, err := httpx.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	user, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return notFound(err, id.String())
	}
	return httpx.OK(c, dto.NewUserResponse(user))
}
