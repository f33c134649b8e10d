package auth

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/otpline/otpline/internal/identity"
	"github.com/otpline/otpline/internal/invite"
	"github.com/otpline/otpline/internal/middleware"
)

// Handler exposes the login, profile, and invite endpoints.
type Handler struct {
	svc    *Service
	users  *identity.Service
	ledger *invite.Ledger
}

// NewHandler constructs the auth HTTP handler.
func NewHandler(svc *Service, users *identity.Service, ledger *invite.Ledger) *Handler {
	return &Handler{svc: svc, users: users, ledger: ledger}
}

type loginRequest struct {
	PhoneNumber string `json:"phone_number"`
}

type loginResponse struct {
	OneTimePassword string `json:"one_time_password"`
}

// Login identifies or registers a user by phone number and issues an OTP.
// The OTP in the 201 body stands in for SMS delivery.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	password, err := h.svc.Identify(c.UserContext(), middleware.SessionID(c), req.PhoneNumber)
	if err != nil {
		if errors.Is(err, ErrInvalidPhone) {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(loginResponse{OneTimePassword: password})
}

type authenticateRequest struct {
	Password string `json:"password"`
}

// Authenticate verifies the submitted OTP against the session's pending login.
func (h *Handler) Authenticate(c *fiber.Ctx) error {
	var req authenticateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	_, err := h.svc.Verify(c.UserContext(), middleware.SessionID(c), req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidOTP) || errors.Is(err, ErrAuthentication) {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.SendStatus(http.StatusCreated)
}

type profileResponse struct {
	ID            string   `json:"id"`
	PhoneNumber   string   `json:"phone_number"`
	InviteCode    string   `json:"invite_code"`
	InvitedByCode *string  `json:"invited_by_code"`
	FirstName     string   `json:"first_name"`
	LastName      string   `json:"last_name"`
	Email         string   `json:"email"`
	InvitedUsers  []string `json:"invited_users"`
}

// Profile returns the authenticated user's profile with the invited numbers.
func (h *Handler) Profile(c *fiber.Ctx) error {
	user, err := h.currentUser(c)
	if err != nil {
		return err
	}
	return h.renderProfile(c, user)
}

type updateProfileRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// UpdateProfile overwrites the optional profile attributes.
func (h *Handler) UpdateProfile(c *fiber.Ctx) error {
	user, err := h.currentUser(c)
	if err != nil {
		return err
	}
	var req updateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	updated, err := h.users.UpdateProfile(c.UserContext(), user.ID, identity.Profile{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
	})
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return h.renderProfile(c, updated)
}

type redeemRequest struct {
	InvitedByCode string `json:"invited_by_code"`
}

// RedeemInvite records the referral code the user was invited with.
func (h *Handler) RedeemInvite(c *fiber.Ctx) error {
	user, err := h.currentUser(c)
	if err != nil {
		return err
	}
	var req redeemRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	updated, err := h.ledger.Redeem(c.UserContext(), user, req.InvitedByCode)
	if err != nil {
		if errors.Is(err, invite.ErrMalformedCode) || errors.Is(err, invite.ErrAlreadyUsed) || errors.Is(err, invite.ErrInvalidCode) {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return h.renderProfile(c, updated)
}

// Logout ends the session. Profile DELETE signs the user out rather than
// deleting the account.
func (h *Handler) Logout(c *fiber.Ctx) error {
	if err := h.svc.Logout(c.UserContext(), middleware.SessionID(c)); err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.SendStatus(http.StatusNoContent)
}

func (h *Handler) currentUser(c *fiber.Ctx) (identity.User, error) {
	user, err := h.svc.CurrentUser(c.UserContext(), middleware.SessionID(c))
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			return identity.User{}, fiber.NewError(http.StatusForbidden, err.Error())
		}
		return identity.User{}, fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return user, nil
}

func (h *Handler) renderProfile(c *fiber.Ctx, user identity.User) error {
	invited, err := h.ledger.InvitedPhoneNumbers(c.UserContext(), user)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	if invited == nil {
		invited = []string{}
	}
	resp := profileResponse{
		ID:           user.ID,
		PhoneNumber:  user.PhoneNumber,
		InviteCode:   user.InviteCode,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
		Email:        user.Email,
		InvitedUsers: invited,
	}
	if user.Invited() {
		code := user.InvitedByCode
		resp.InvitedByCode = &code
	}
	return c.Status(http.StatusOK).JSON(resp)
}
