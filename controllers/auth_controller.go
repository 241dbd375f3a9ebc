package controller

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"runwayiq/models"
	"runwayiq/session"
	"runwayiq/utils"
)

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Name     string `json:"name" validate:"omitempty,max=100"`
	Timezone string `json:"timezone" validate:"omitempty,max=64"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type AuthResponse struct {
	AccessToken string       `json:"access_token"`
	ExpiresAt   time.Time    `json:"expires_at"`
	SessionID   string       `json:"session_id"`
	User        *models.User `json:"user"`
}

type AuthController struct {
	DB            *gorm.DB
	Sessions      *session.Manager
	Secret        string
	TokenTTL      time.Duration
	SecureCookies bool
	Logger        *logrus.Entry
}

func NewAuthController(db *gorm.DB, sessions *session.Manager, secret string, ttl time.Duration, logger *logrus.Entry) *AuthController {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &AuthController{
		DB:       db,
		Sessions: sessions,
		Secret:   secret,
		TokenTTL: ttl,
		Logger:   logger,
	}
}

func (ac *AuthController) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	// Check if user already exists
	var count int64
	if err := ac.DB.Model(&models.User{}).Where("email = ?", req.Email).Count(&count).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to check existing user", err)
	}
	if count > 0 {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Email already registered", nil)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to hash password", nil)
	}

	user := models.User{
		Email:        req.Email,
		PasswordHash: string(hashedPassword),
		Name:         utils.SanitizeString(req.Name),
		Timezone:     req.Timezone,
		IsActive:     true,
	}
	if user.Timezone == "" {
		user.Timezone = "UTC"
	}

	if err := ac.DB.Create(&user).Error; err != nil {
		utils.LogError("user_registration", err, map[string]interface{}{"email": user.Email})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create user", nil)
	}

	resp, err := ac.issue(c, &user)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to generate tokens", nil)
	}

	utils.LogEvent("user_registered", map[string]interface{}{"user_id": user.ID})
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(resp))
}

func (ac *AuthController) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var user models.User
	if err := ac.DB.Where("email = ?", req.Email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid email or password", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid email or password", nil)
	}

	if !user.IsActive {
		return utils.ErrorResponse(c, fiber.StatusForbidden, "Account is not active", nil)
	}

	now := time.Now()
	user.LastLoginAt = &now
	if err := ac.DB.Model(&user).Update("last_login_at", now).Error; err != nil {
		ac.Logger.WithError(err).WithField("user_id", user.ID).Warn("Failed to record last login")
	}

	resp, err := ac.issue(c, &user)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to generate tokens", nil)
	}
	return c.JSON(utils.SuccessResponse(resp))
}

func (ac *AuthController) issue(c *fiber.Ctx, user *models.User) (*AuthResponse, error) {
	token, claims, err := utils.GenerateJWTToken(user, ac.Secret, ac.TokenTTL)
	if err != nil {
		return nil, err
	}
	expires := claims.ExpiresAt.Time
	c.Cookie(&fiber.Cookie{
		Name:     "access_token",
		Value:    token,
		Expires:  expires,
		HTTPOnly: true,
		Secure:   ac.SecureCookies,
		SameSite: "Lax",
	})
	return &AuthResponse{
		AccessToken: token,
		ExpiresAt:   expires,
		SessionID:   claims.SessionID,
		User:        user,
	}, nil
}

// Logout revokes the current session for the remainder of its token lifetime
func (ac *AuthController) Logout(c *fiber.Ctx) error {
	sess, err := session.FromCtx(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization required", nil)
	}

	if err := ac.Sessions.SignOut(c.UserContext(), sess); err != nil {
		utils.LogError("sign_out", err, map[string]interface{}{"user_id": sess.UserID})
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to sign out", nil)
	}

	c.ClearCookie("access_token")
	return c.JSON(utils.SuccessResponse(fiber.Map{
		"message": "Logged out successfully",
	}))
}

func (ac *AuthController) Me(c *fiber.Ctx) error {
	sess, err := session.FromCtx(c)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusUnauthorized, "Authorization required", nil)
	}

	var user models.User
	if err := ac.DB.First(&user, sess.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "User not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to fetch user", err)
	}

	return c.JSON(utils.SuccessResponse(fiber.Map{
		"user":       user,
		"session_id": sess.ID,
		"expires_at": sess.ExpiresAt,
	}))
}
