package accounts

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
)

const (
	ActionSyncFromProvider = "syncFromCognito"
	ActionUpdateStatus     = "updateUserAdminStatus"
	ActionSoftDelete       = "softDeleteUser"
	ActionHardDelete       = "hardDeleteUser"

	// ActionInvalid labels observations of requests whose action is not one of the above.
	ActionInvalid = "invalid"

	DefaultControllerPath = "/admin/users"
)

// RequestObserver receives one observation per handled request.
type RequestObserver interface {
	ObserveRequest(action string, status int, elapsed time.Duration)
}

// ActionRequest is the JSON body accepted by the controller.
type ActionRequest struct {
	Action       string `json:"action"`
	UserID       string `json:"userId"`
	IsAdmin      *bool  `json:"isAdmin"`
	IsDeveloper  *bool  `json:"isDeveloper"`
	IsSelfDelete bool   `json:"isSelfDelete"`
}

// Validate checks the action discriminator and its required fields.
func (r ActionRequest) Validate() error {
	userRules := []validation.Rule{}
	flagRules := []validation.Rule{}

	switch r.Action {
	case ActionUpdateStatus:
		userRules = append(userRules, validation.Required)
		flagRules = append(flagRules, validation.NotNil)
	case ActionSoftDelete, ActionHardDelete:
		userRules = append(userRules, validation.Required)
	}

	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Action,
			validation.Required,
			validation.In(
				ActionSyncFromProvider,
				ActionUpdateStatus,
				ActionSoftDelete,
				ActionHardDelete,
			),
		),
		validation.Field(&r.UserID, userRules...),
		validation.Field(&r.IsAdmin, flagRules...),
		validation.Field(&r.IsDeveloper, flagRules...),
	)
}

// HTTPControllerOption customizes an HTTPController.
type HTTPControllerOption func(*HTTPController)

// WithControllerPath sets the route the controller is mounted on.
func WithControllerPath(path string) HTTPControllerOption {
	return func(h *HTTPController) {
		if path != "" {
			h.path = path
		}
	}
}

// WithRequireAdminToken controls whether sync and status changes need an
// elevated token. It is on by default.
func WithRequireAdminToken(required bool) HTTPControllerOption {
	return func(h *HTTPController) {
		h.requireAdminToken = required
	}
}

// WithAllowedOrigin sets the Access-Control-Allow-Origin value.
func WithAllowedOrigin(origin string) HTTPControllerOption {
	return func(h *HTTPController) {
		if origin != "" {
			h.allowedOrigin = origin
		}
	}
}

func WithControllerLogger(logger Logger) HTTPControllerOption {
	return func(h *HTTPController) {
		if logger != nil {
			h.logger = logger
		}
	}
}

func WithRequestObserver(observer RequestObserver) HTTPControllerOption {
	return func(h *HTTPController) {
		h.observer = observer
	}
}

// HTTPController dispatches account actions posted to a single route.
type HTTPController struct {
	service           *Service
	path              string
	requireAdminToken bool
	allowedOrigin     string
	logger            Logger
	observer          RequestObserver
}

// NewHTTPController creates a controller for service.
func NewHTTPController(service *Service, opts ...HTTPControllerOption) *HTTPController {
	h := &HTTPController{
		service:           service,
		path:              DefaultControllerPath,
		requireAdminToken: true,
		allowedOrigin:     "*",
		logger:            defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}

	return h
}

// Path returns the mounted route.
func (h *HTTPController) Path() string {
	return h.path
}

// Register mounts the action and preflight handlers plus /healthz.
func (h *HTTPController) Register(r fiber.Router) {
	r.Options(h.path, h.Preflight)
	r.Post(h.path, h.Handle)
	r.Get("/healthz", h.Health)
}

// Preflight answers CORS preflight requests with an empty 200.
func (h *HTTPController) Preflight(c *fiber.Ctx) error {
	h.setCORS(c)
	return c.SendStatus(fiber.StatusOK)
}

// Health reports liveness.
func (h *HTTPController) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Handle decodes the action request and dispatches it.
func (h *HTTPController) Handle(c *fiber.Ctx) error {
	started := time.Now()
	h.setCORS(c)

	req := ActionRequest{}
	err := h.dispatch(c, &req)
	if err != nil {
		err = h.fail(c, err)
	}

	if h.observer != nil {
		h.observer.ObserveRequest(observedAction(req.Action), c.Response().StatusCode(), time.Since(started))
	}
	return err
}

// observedAction keeps caller supplied strings out of observer labels.
func observedAction(action string) string {
	switch action {
	case ActionSyncFromProvider, ActionUpdateStatus, ActionSoftDelete, ActionHardDelete:
		return action
	}
	return ActionInvalid
}

func (h *HTTPController) dispatch(c *fiber.Ctx, req *ActionRequest) error {
	if body := c.Body(); len(body) > 0 {
		if err := json.Unmarshal(body, req); err != nil {
			return ValidationError(fmt.Errorf("invalid JSON body: %w", err))
		}
	}

	if err := req.Validate(); err != nil {
		return ValidationError(err)
	}

	switch req.Action {
	case ActionSyncFromProvider:
		return h.syncAll(c)
	case ActionUpdateStatus:
		return h.updateStatus(c, req)
	case ActionSoftDelete:
		return h.softDelete(c, req)
	case ActionHardDelete:
		return h.hardDelete(c, req)
	}

	return ValidationError(fmt.Errorf("action: unknown action %q", req.Action))
}

func (h *HTTPController) syncAll(c *fiber.Ctx) error {
	if h.requireAdminToken {
		if _, err := h.authenticate(c, true); err != nil {
			return err
		}
	}

	report, err := h.service.Reconciler.SyncAll(c.UserContext())
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success":      report.Success(),
		"message":      fmt.Sprintf("Successfully synced %d users", report.UpdatedCount),
		"updatedCount": report.UpdatedCount,
		"errors":       report.Errors,
	})
}

func (h *HTTPController) updateStatus(c *fiber.Ctx, req *ActionRequest) error {
	var caller *Caller
	if h.requireAdminToken {
		var err error
		if caller, err = h.authenticate(c, true); err != nil {
			return err
		}
	}

	result, err := h.service.Mutator.SetStatusAs(c.UserContext(), caller, req.UserID, *req.IsAdmin, *req.IsDeveloper)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": fmt.Sprintf("Successfully updated user %s admin status", req.UserID),
		"added":   groupNames(result.Added),
		"removed": groupNames(result.Removed),
	})
}

func (h *HTTPController) softDelete(c *fiber.Ctx, req *ActionRequest) error {
	caller, err := h.authenticate(c, !req.IsSelfDelete)
	if err != nil {
		return err
	}

	if _, err := h.service.Lifecycle.SoftDelete(c.UserContext(), SoftDeleteRequest{
		TargetID:     req.UserID,
		Caller:       caller,
		IsSelfDelete: req.IsSelfDelete,
	}); err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": fmt.Sprintf("Successfully soft deleted user %s", req.UserID),
	})
}

func (h *HTTPController) hardDelete(c *fiber.Ctx, req *ActionRequest) error {
	caller, err := h.authenticate(c, true)
	if err != nil {
		return err
	}

	if _, err := h.service.Lifecycle.HardDelete(c.UserContext(), HardDeleteRequest{
		TargetID: req.UserID,
		Caller:   caller,
	}); err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"message": fmt.Sprintf("Successfully hard deleted user %s", req.UserID),
	})
}

func (h *HTTPController) authenticate(c *fiber.Ctx, requireElevated bool) (*Caller, error) {
	if h.service.Validator == nil {
		return nil, NewError(ErrTokenKeySetUnavailable, errors.New("no token validator configured"), nil)
	}
	return h.service.Validator.Validate(c.UserContext(), c.Get(fiber.HeaderAuthorization), requireElevated)
}

func (h *HTTPController) fail(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	message := err.Error()

	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		if rich.Code > 0 {
			status = rich.Code
		}
		message = rich.Message
	}

	if status >= fiber.StatusInternalServerError {
		h.logger.Error("account action failed", "path", c.Path(), "error", err)
	} else {
		h.logger.Debug("account action rejected", "path", c.Path(), "status", status, "error", err)
	}

	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   message,
	})
}

func (h *HTTPController) setCORS(c *fiber.Ctx) {
	c.Set(fiber.HeaderAccessControlAllowOrigin, h.allowedOrigin)
	c.Set(fiber.HeaderAccessControlAllowHeaders, "Content-Type, Authorization")
	c.Set(fiber.HeaderAccessControlAllowMethods, strings.Join([]string{fiber.MethodPost, fiber.MethodOptions}, ", "))
}

func groupNames(groups []Group) []string {
	out := make([]string, 0, len(groups))
	for _, g := range groups {
		out = append(out, string(g))
	}
	return out
}
