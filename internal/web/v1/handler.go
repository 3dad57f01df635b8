// Package v1 hosts the gateway auth routes. They sit between the UI and the
// hosted session store: validate input, delegate, and relay the store's
// cookie writes onto the response.
package v1

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zakzackr/knowme/internal/api"
	"github.com/zakzackr/knowme/internal/relay"
	"github.com/zakzackr/knowme/internal/session"
	"github.com/zakzackr/knowme/middleware"
)

// Handler groups the auth route handlers. Dependencies are injected via the
// constructor; no global state.
type Handler struct {
	store session.Store
}

// NewHandler creates a Handler over the given store client.
func NewHandler(store session.Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes registers the auth routes on the given router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/auth/login", h.Login)
	rg.POST("/auth/signup", h.Signup)
	rg.POST("/auth/logout", h.Logout)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

type authResponse struct {
	Message string       `json:"message"`
	User    api.AuthUser `json:"user"`
}

// Login signs a user in against the store. The session cookie the store
// issues rides the response through the relay jar.
func (h *Handler) Login(c *gin.Context) {
	ctx, span := middleware.StartSpan(c.Request.Context(), "web.login", trace.WithAttributes(
		attribute.String("layer", "web"),
	))
	defer span.End()

	logger := zerolog.Ctx(ctx)

	var req loginRequest
	// Validation runs before any network call.
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Password == "" {
		span.SetAttributes(attribute.Bool("request.valid", false))
		writeError(c, http.StatusBadRequest, api.CodeValidation, "メールアドレスとパスワードが必要です")
		return
	}

	fwd := relay.NewForward(c.Request.WithContext(ctx))
	sess, err := h.store.SignIn(ctx, fwd, req.Email, req.Password)
	if err != nil {
		span.RecordError(err)
		logger.Error().Err(err).Msg("Login failed")

		switch {
		case errors.Is(err, session.ErrInvalidCredentials):
			writeError(c, http.StatusUnauthorized, api.CodeAuthentication, "メールアドレスまたはパスワードが正しくありません")
		case errors.Is(err, session.ErrStoreUnavailable):
			writeError(c, http.StatusInternalServerError, api.CodeInternal, "予期せぬエラーが発生しました")
		default:
			writeError(c, http.StatusUnauthorized, api.CodeAuthentication, "ログインに失敗しました")
		}
		return
	}

	fwd.Apply(c.Writer)

	user := sess.User()
	logger.Info().Str("user_id", user.ID).Msg("Login successful")
	c.JSON(http.StatusOK, authResponse{
		Message: "ログインに成功しました",
		User:    api.AuthUser{Username: user.Username, AvatarURL: user.AvatarURL, Role: user.Role},
	})
}

// Signup registers a new user against the store.
func (h *Handler) Signup(c *gin.Context) {
	ctx, span := middleware.StartSpan(c.Request.Context(), "web.signup", trace.WithAttributes(
		attribute.String("layer", "web"),
	))
	defer span.End()

	logger := zerolog.Ctx(ctx)

	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" || req.Password == "" || req.Username == "" {
		span.SetAttributes(attribute.Bool("request.valid", false))
		writeError(c, http.StatusBadRequest, api.CodeValidation, "メールアドレス、パスワード、ユーザーネームが必要です")
		return
	}

	// Strength check happens here so an obviously weak password never
	// reaches the store.
	if len(req.Password) < 8 {
		writeError(c, http.StatusBadRequest, api.CodeWeakPassword, "パスワードは8文字以上で設定してください")
		return
	}

	fwd := relay.NewForward(c.Request.WithContext(ctx))
	sess, err := h.store.SignUp(ctx, fwd, req.Email, req.Password, req.Username)
	if err != nil {
		span.RecordError(err)
		logger.Error().Err(err).Msg("Signup failed")

		switch {
		case errors.Is(err, session.ErrEmailExists):
			writeError(c, http.StatusConflict, api.CodeDuplicateEmail, "このメールアドレスは既に登録されています")
		case errors.Is(err, session.ErrWeakPassword):
			writeError(c, http.StatusBadRequest, api.CodeWeakPassword, "パスワードは8文字以上で設定してください")
		case errors.Is(err, session.ErrStoreUnavailable):
			writeError(c, http.StatusInternalServerError, api.CodeInternal, "予期せぬエラーが発生しました")
		default:
			writeError(c, http.StatusBadRequest, api.CodeAuthentication, "新規登録に失敗しました")
		}
		return
	}

	fwd.Apply(c.Writer)

	user := sess.User()
	logger.Info().Str("user_id", user.ID).Msg("Signup successful")
	c.JSON(http.StatusCreated, authResponse{
		Message: "新規登録に成功しました",
		User:    api.AuthUser{Username: user.Username, AvatarURL: user.AvatarURL, Role: user.Role},
	})
}

// Logout signs the session out. A store failure is logged and the fallback
// cookie clear still rides the response: the user asked to be logged out,
// and locally they are.
func (h *Handler) Logout(c *gin.Context) {
	ctx, span := middleware.StartSpan(c.Request.Context(), "web.logout", trace.WithAttributes(
		attribute.String("layer", "web"),
	))
	defer span.End()

	fwd := relay.NewForward(c.Request.WithContext(ctx))
	if err := h.store.SignOut(ctx, fwd); err != nil {
		span.RecordError(err)
		zerolog.Ctx(ctx).Error().Err(err).Msg("Store sign-out failed")
	}

	fwd.Apply(c.Writer)
	c.JSON(http.StatusOK, gin.H{"message": "ログアウトに成功しました"})
}

func writeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, &api.Error{Code: code, Message: message})
}
