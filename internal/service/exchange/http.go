package exchange

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oggyb/survey-exchange/internal/app"
	"github.com/oggyb/survey-exchange/internal/auth"
	svcErr "github.com/oggyb/survey-exchange/internal/errors"
	"github.com/oggyb/survey-exchange/internal/server"
	"github.com/oggyb/survey-exchange/internal/service/responses"
)

// HTTPHandler serves the browser-facing routes: the verify redirect target
// of external surveys and the verification links.
type HTTPHandler struct {
	appCtx  *app.AppContext
	engines *app.Engines
}

func NewHTTPHandler(appCtx *app.AppContext, engines *app.Engines) *HTTPHandler {
	return &HTTPHandler{appCtx: appCtx, engines: engines}
}

// Router builds the gin engine with logging, rate limiting and bearer auth.
func (h *HTTPHandler) Router() *gin.Engine {
	if h.appCtx.Config.App.ENV != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// ClientIP keys the rate limiter; forwarding headers count only from
	// configured proxies.
	if err := r.SetTrustedProxies(h.appCtx.Config.HTTP.TrustedProxies); err != nil {
		h.appCtx.Logger.Error("invalid trusted proxies, forwarding headers ignored", "err", err)
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(gin.Recovery())
	r.Use(server.AccessLog(h.appCtx.Logger))

	r.GET("/healthz", h.health)

	limited := r.Group("/")
	limited.Use(server.NewRateLimiter(h.appCtx.Config.HTTP.RateLimitPerMinute, h.appCtx.Clock).Middleware())
	limited.Use(auth.GinMiddleware(h.appCtx.Tokens))
	limited.GET("/verify", h.verify)
	limited.GET("/verify/link", h.verifyLink)
	limited.GET("/surveys/:id/verifications/stats", h.verificationStats)
	return r
}

func (h *HTTPHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

var verifyStatus = map[string]int{
	responses.CodeNoPendingResponse:     http.StatusNotFound,
	responses.CodeSurveyNotFound:        http.StatusNotFound,
	responses.CodeNoIdentity:            http.StatusUnauthorized,
	responses.CodeAlreadyVerified:       http.StatusConflict,
	responses.CodeVerificationError:     http.StatusInternalServerError,
	responses.CodeLinkInvalid:           http.StatusNotFound,
	responses.CodeTargetReached:         http.StatusConflict,
	responses.CodeDuplicateVerification: http.StatusConflict,
}

func statusFor(success bool, code string) int {
	if success {
		return http.StatusOK
	}
	if s, ok := verifyStatus[code]; ok {
		return s
	}
	return http.StatusBadRequest
}

func visitFromRequest(c *gin.Context) responses.Visit {
	return responses.Visit{
		UserAgent: c.Request.UserAgent(),
		IPAddress: c.ClientIP(),
		Referrer:  c.Request.Referer(),
		SessionID: c.Query("sessionId"),
	}
}

// verify is where an external survey redirects after submission.
// GET /verify?surveyId=<id>&token=<link token>
//
// The respondent comes from the signed link token, or else from a bearer
// header. Without either the call is rejected and no user is created.
func (h *HTTPHandler) verify(c *gin.Context) {
	surveyID := c.Query("surveyId")
	if surveyID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "surveyId is required"})
		return
	}

	ctx := c.Request.Context()
	var responseID string
	if link := c.Query("token"); link != "" {
		id, rid, err := h.appCtx.Tokens.ParseVerify(link)
		if err != nil {
			h.appCtx.Logger.Debug("verify link rejected", "survey", surveyID, "err", err)
			c.JSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"code":    responses.CodeNoIdentity,
				"message": "verification link is invalid or expired",
			})
			return
		}
		ctx, responseID = auth.WithIdentity(ctx, id), rid
	}

	res := h.engines.Responses.VerifyLinkedResponse(ctx, surveyID, responseID)
	c.JSON(statusFor(res.Success, res.Code), gin.H(verificationFields(res)))
}

// verifyLink records a visit to a survey's verification link.
// GET /verify/link?id=<verificationId>&sessionId=<session>
func (h *HTTPHandler) verifyLink(c *gin.Context) {
	verificationID := c.Query("id")
	if verificationID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
		return
	}
	res := h.engines.Responses.ProcessVerification(c.Request.Context(), verificationID, visitFromRequest(c))
	c.JSON(statusFor(res.Success, res.Code), gin.H(linkFields(res)))
}

// verificationStats is restricted to the survey owner.
// GET /surveys/:id/verifications/stats
func (h *HTTPHandler) verificationStats(c *gin.Context) {
	st, err := h.engines.Responses.GetVerificationStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		code := svcErr.HTTPStatus(err)
		if code >= http.StatusInternalServerError {
			h.appCtx.Logger.Error("verification stats failed", "survey", c.Param("id"), "err", err)
		}
		c.JSON(code, gin.H{"error": http.StatusText(code)})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total":        st.Total,
		"completed":    st.Completed,
		"statusCounts": st.StatusCounts,
		"dailyCounts":  st.DailyCounts,
	})
}
