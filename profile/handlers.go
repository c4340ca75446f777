package profile

import (
	"encoding/json"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/provideplatform/attestation/credential"
	provide "github.com/provideplatform/provide-go/common"
	"github.com/provideplatform/provide-go/common/util"
)

// InstallAPI registers the profile API handlers with gin
func InstallAPI(r *gin.Engine, manager Manager) {
	r.POST("/api/v1/profiles", createProfileHandler(manager))
	r.GET("/api/v1/profiles/:user_key", profileDetailsHandler(manager))
	r.POST("/api/v1/profiles/:user_key/disable", disableProfileHandler(manager))
}

func authorized(c *gin.Context) bool {
	appID := util.AuthorizedSubjectID(c, "application")
	orgID := util.AuthorizedSubjectID(c, "organization")
	userID := util.AuthorizedSubjectID(c, "user")
	if appID == nil && orgID == nil && userID == nil {
		provide.RenderError("unauthorized", 401, c)
		return false
	}
	return true
}

func renderError(err error, c *gin.Context) {
	switch {
	case errors.Is(err, credential.ErrNotFound):
		provide.RenderError(err.Error(), 404, c)
	case errors.Is(err, credential.ErrSchema):
		provide.RenderError(err.Error(), 422, c)
	default:
		provide.RenderError(err.Error(), 500, c)
	}
}

func createProfileHandler(manager Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authorized(c) {
			return
		}

		buf, err := c.GetRawData()
		if err != nil {
			provide.RenderError(err.Error(), 400, c)
			return
		}

		params := &credential.Profile{}
		err = json.Unmarshal(buf, params)
		if err != nil {
			provide.RenderError(err.Error(), 422, c)
			return
		}

		if params.UserKey == nil || *params.UserKey == "" {
			provide.RenderError("user_key required", 422, c)
			return
		}

		profile, err := manager.CreateProfile(c, *params.UserKey, params.Name, params.Email)
		if err != nil {
			renderError(err, c)
			return
		}

		provide.Render(profile, 201, c)
	}
}

func profileDetailsHandler(manager Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authorized(c) {
			return
		}

		profile, err := manager.RetrieveProfile(c, c.Param("user_key"))
		if err != nil {
			renderError(err, c)
			return
		}

		provide.Render(profile, 200, c)
	}
}

func disableProfileHandler(manager Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authorized(c) {
			return
		}

		profile, err := manager.DisableProfile(c, c.Param("user_key"))
		if err != nil {
			renderError(err, c)
			return
		}

		provide.Render(profile, 200, c)
	}
}
