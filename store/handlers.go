/*
 * Copyright 2017-2022 Provide Technologies Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package store

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	uuid "github.com/kthomas/go.uuid"
	"github.com/provideplatform/attestation/credential"
	provide "github.com/provideplatform/provide-go/common"
	util "github.com/provideplatform/provide-go/common/util"
)

// InstallAPI registers the record store API handlers with gin
func InstallAPI(r *gin.Engine, store RecordStore) {
	r.GET("/api/v1/records/:kind", queryRecordsHandler(store))
	r.GET("/api/v1/records/:kind/:id", recordDetailsHandler(store))

	r.POST("/api/v1/entities", createEntityHandler(store))
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

// renderStoreError renders the given error with a status code derived from its kind
func renderStoreError(err error, c *gin.Context) {
	switch {
	case errors.Is(err, credential.ErrNotFound):
		provide.RenderError(err.Error(), 404, c)
	case errors.Is(err, credential.ErrSchema):
		provide.RenderError(err.Error(), 422, c)
	case errors.Is(err, credential.ErrInvalidTransition), errors.Is(err, credential.ErrImmutable):
		provide.RenderError(err.Error(), 409, c)
	default:
		provide.RenderError(err.Error(), 500, c)
	}
}

func queryRecordsHandler(store RecordStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authorized(c) {
			return
		}

		query := map[string]interface{}{}
		for name, vals := range c.Request.URL.Query() {
			if len(vals) > 0 {
				query[name] = vals[0]
			}
		}
		if len(query) == 0 {
			provide.RenderError("at least one query parameter required", 400, c)
			return
		}

		record, err := store.GetBy(c, credential.Kind(c.Param("kind")), query)
		if err != nil {
			renderStoreError(err, c)
			return
		}

		provide.Render(record, 200, c)
	}
}

func recordDetailsHandler(store RecordStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authorized(c) {
			return
		}

		id, err := uuid.FromString(c.Param("id"))
		if err != nil {
			provide.RenderError("invalid record id", 400, c)
			return
		}

		record, err := GetByID(c, store, credential.Kind(c.Param("kind")), id)
		if err != nil {
			renderStoreError(err, c)
			return
		}

		provide.Render(record, 200, c)
	}
}

func createEntityHandler(store RecordStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !authorized(c) {
			return
		}

		buf, err := c.GetRawData()
		if err != nil {
			provide.RenderError(err.Error(), 400, c)
			return
		}

		entity := &credential.Entity{}
		err = json.Unmarshal(buf, entity)
		if err != nil {
			provide.RenderError(err.Error(), 422, c)
			return
		}

		err = store.Create(c, entity)
		if err != nil {
			renderStoreError(err, c)
			return
		}

		provide.Render(entity, http.StatusCreated, c)
	}
}
