package admin

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"planadmin-backend/internal/auth"
	"planadmin-backend/internal/store"
)

type Handler struct {
	store *store.Store
}

func NewHandler(s *store.Store) *Handler {
	return &Handler{store: s}
}

func RegisterAdminRoutes(app *fiber.App, h *Handler, authMW fiber.Handler) {
	admin := app.Group("/admin", authMW, auth.RequireAdmin())

	admin.Get("/users", h.ListUsers)
	admin.Get("/users/:id", h.GetUser)
	admin.Post("/users", h.CreateUser)
	admin.Put("/users/:id", h.UpdateUser)
	admin.Delete("/users/:id", h.DeleteUser)
}

const userColumns = "id, email, username, roles, active, created_at, updated_at"

func (h *Handler) ListUsers(c *fiber.Ctx) error {
	rows, err := store.QueryRows(c.Context(), h.store.Pool,
		"SELECT "+userColumns+" FROM _users ORDER BY email")
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return c.JSON(fiber.Map{"data": rows})
}

func (h *Handler) GetUser(c *fiber.Ctx) error {
	id := c.Params("id")
	row, err := store.QueryRow(c.Context(), h.store.Pool,
		"SELECT "+userColumns+" FROM _users WHERE id::text = $1", id)
	if err != nil {
		return c.Status(404).JSON(fiber.Map{"error": fiber.Map{"code": "NOT_FOUND", "message": "User not found: " + id}})
	}
	return c.JSON(fiber.Map{"data": row})
}

type userPayload struct {
	Email    string   `json:"email"`
	Username string   `json:"username"`
	Password string   `json:"password"`
	Roles    []string `json:"roles"`
	Active   *bool    `json:"active"`
}

func (h *Handler) CreateUser(c *fiber.Ctx) error {
	var body userPayload
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": fiber.Map{"code": "INVALID_PAYLOAD", "message": "Invalid JSON body"}})
	}

	if err := validateUser(&body, true); err != nil {
		return c.Status(422).JSON(fiber.Map{"error": fiber.Map{"code": "VALIDATION_FAILED", "message": err.Error()}})
	}

	hash, err := auth.HashPassword(body.Password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if body.Roles == nil {
		body.Roles = []string{}
	}
	active := true
	if body.Active != nil {
		active = *body.Active
	}

	row, err := store.QueryRow(c.Context(), h.store.Pool,
		`INSERT INTO _users (email, username, password_hash, roles, active)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+userColumns,
		body.Email, body.Username, hash, body.Roles, active)
	if err != nil {
		if errors.Is(store.MapError(err), store.ErrUniqueViolation) {
			return c.Status(409).JSON(fiber.Map{"error": fiber.Map{"code": "CONFLICT", "message": "User already exists: " + body.Email}})
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return c.Status(201).JSON(fiber.Map{"data": row})
}

func (h *Handler) UpdateUser(c *fiber.Ctx) error {
	id := c.Params("id")
	existing, err := store.QueryRow(c.Context(), h.store.Pool,
		"SELECT "+userColumns+" FROM _users WHERE id::text = $1", id)
	if err != nil {
		return c.Status(404).JSON(fiber.Map{"error": fiber.Map{"code": "NOT_FOUND", "message": "User not found: " + id}})
	}

	var body userPayload
	if err := c.BodyParser(&body); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": fiber.Map{"code": "INVALID_PAYLOAD", "message": "Invalid JSON body"}})
	}

	sets := []string{}
	args := []any{}
	n := 1
	if body.Email != "" {
		sets = append(sets, fmt.Sprintf("email = $%d", n))
		args = append(args, body.Email)
		n++
	}
	if body.Username != "" {
		sets = append(sets, fmt.Sprintf("username = $%d", n))
		args = append(args, body.Username)
		n++
	}
	if body.Password != "" {
		hash, err := auth.HashPassword(body.Password)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		sets = append(sets, fmt.Sprintf("password_hash = $%d", n))
		args = append(args, hash)
		n++
	}
	if body.Roles != nil {
		sets = append(sets, fmt.Sprintf("roles = $%d", n))
		args = append(args, body.Roles)
		n++
	}
	if body.Active != nil {
		sets = append(sets, fmt.Sprintf("active = $%d", n))
		args = append(args, *body.Active)
		n++
	}
	if len(sets) == 0 {
		return c.JSON(fiber.Map{"data": existing})
	}
	sets = append(sets, "updated_at = NOW()")
	args = append(args, id)

	row, err := store.QueryRow(c.Context(), h.store.Pool,
		fmt.Sprintf("UPDATE _users SET %s WHERE id::text = $%d RETURNING %s",
			strings.Join(sets, ", "), n, userColumns),
		args...)
	if err != nil {
		if errors.Is(store.MapError(err), store.ErrUniqueViolation) {
			return c.Status(409).JSON(fiber.Map{"error": fiber.Map{"code": "CONFLICT", "message": "Email or username already in use"}})
		}
		return fmt.Errorf("update user %s: %w", id, err)
	}

	return c.JSON(fiber.Map{"data": row})
}

func (h *Handler) DeleteUser(c *fiber.Ctx) error {
	id := c.Params("id")

	user := auth.GetUser(c)
	if user != nil && user.ID == id {
		return c.Status(422).JSON(fiber.Map{"error": fiber.Map{"code": "VALIDATION_FAILED", "message": "Cannot delete your own account"}})
	}

	_, err := store.Exec(c.Context(), h.store.Pool,
		"DELETE FROM _refresh_tokens WHERE user_id::text = $1", id)
	if err != nil {
		return fmt.Errorf("delete refresh tokens for user %s: %w", id, err)
	}

	affected, err := store.Exec(c.Context(), h.store.Pool,
		"DELETE FROM _users WHERE id::text = $1", id)
	if err != nil {
		return fmt.Errorf("delete user %s: %w", id, err)
	}
	if affected == 0 {
		return c.Status(404).JSON(fiber.Map{"error": fiber.Map{"code": "NOT_FOUND", "message": "User not found: " + id}})
	}

	return c.JSON(fiber.Map{"data": fiber.Map{"id": id, "deleted": true}})
}

func validateUser(u *userPayload, isCreate bool) error {
	if u.Email == "" {
		return fmt.Errorf("email is required")
	}
	if u.Username == "" {
		return fmt.Errorf("username is required")
	}
	if isCreate && u.Password == "" {
		return fmt.Errorf("password is required")
	}
	if u.Password != "" && len(u.Password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}
	return nil
}
