// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package internal

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/contrib/static"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/mlnoga/flatfield/internal/exposure"
	"github.com/mlnoga/flatfield/internal/flatcor"
	"github.com/mlnoga/flatfield/internal/policy"
)

// Parameters for the HTTP server
type ServeParams struct {
	Port   int    // TCP port to listen on
	WebDir string // Static frontend files to serve on /, if any
}

// Request body of the flat field correction endpoint
type CorrectRequest struct {
	Chunk     *exposure.Exposure[float32] `json:"chunk"`
	Master    *exposure.Exposure[float32] `json:"master"`
	Algorithm policy.AlgorithmConfig      `json:"algorithm"`
	Dataset   policy.DatasetConfig        `json:"dataset"`
}

// Response body of the flat field correction endpoint
type CorrectResponse struct {
	RunID    string                      `json:"runId"`
	Exposure *exposure.Exposure[float32] `json:"exposure,omitempty"`
	Result   *flatcor.Result             `json:"result,omitempty"`
	Error    string                      `json:"error,omitempty"`
	Code     flatcor.Code                `json:"code,omitempty"`
	Step     string                      `json:"step,omitempty"`
}

// Build the router with API endpoints, and static web content if configured
func NewRouter(p *ServeParams) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	if p.WebDir != "" {
		r.Use(static.Serve("/", static.LocalFile(p.WebDir, true)))
	}

	r.GET("/api/v1/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})
	r.POST("/api/v1/flatcor", handleCorrect)
	return r
}

// Serve static web content and API endpoints via HTTP
func CmdServe(p *ServeParams) error {
	LogPrintf("Serving on port %d\n", p.Port)
	return NewRouter(p).Run(fmt.Sprintf(":%d", p.Port)) // listen and serve on 0.0.0.0:port
}

func handleCorrect(c *gin.Context) {
	resp := CorrectResponse{RunID: uuid.NewString()}

	var req CorrectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		resp.Error = err.Error()
		c.JSON(http.StatusBadRequest, resp)
		return
	}
	if req.Chunk == nil || req.Master == nil {
		resp.Error = "chunk and master are required"
		c.JSON(http.StatusBadRequest, resp)
		return
	}

	res, err := runCorrectRequest(&req, resp.RunID)
	if err != nil {
		resp.Error = err.Error()
		status := http.StatusBadRequest
		var fe *flatcor.Error
		if errors.As(err, &fe) {
			resp.Code, resp.Step = fe.Code, fe.Step.String()
			status = http.StatusUnprocessableEntity
			if fe.Code == flatcor.CodeAlreadyCorrected {
				status = http.StatusConflict
			}
		}
		LogPrintf("%s: %s\n", resp.RunID, resp.Error)
		c.JSON(status, resp)
		return
	}

	resp.Exposure, resp.Result = req.Chunk, res
	c.JSON(http.StatusOK, resp)
}

// Resolve the request policies and run the stage on the request exposures
func runCorrectRequest(req *CorrectRequest, runID string) (*flatcor.Result, error) {
	alg, err := req.Algorithm.Resolve()
	if err != nil {
		return nil, err
	}
	ds, err := req.Dataset.Resolve()
	if err != nil {
		return nil, err
	}

	stage := flatcor.NewStage[float32](alg, ds)
	stage.Log = Logger().With().Str("run", runID).Logger()
	_, res, err := stage.Run(req.Chunk, req.Master)
	if err != nil {
		return nil, err
	}
	return &res, nil
}
