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

package rest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mlnoga/deconv/internal/ops"
	_ "github.com/mlnoga/deconv/internal/ops/deconv" // register the deconvolution operators
	"github.com/mlnoga/deconv/web"
)

var (
	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deconv_jobs_total",
		Help: "Number of deconvolution jobs by outcome",
	}, []string{"status"})

	jobDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "deconv_job_duration_seconds",
		Help:    "Wall clock duration of deconvolution jobs",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
	})

	solverIterations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deconv_solver_iterations_total",
		Help: "Forward-Backward iterations performed across all jobs",
	})
)

// Server settings
type Options struct {
	MaxThreads int // concurrent images per job
	MemoryMB   int // physical memory for warnings, 0 to skip the check
}

// Builds the HTTP router with the job API and the metrics endpoint
func NewRouter(o Options) *gin.Engine {
	r := gin.Default()
	r.GET("/", getIndex)
	api := r.Group("/api")
	{
		v1 := api.Group("/v1")
		{
			v1.GET("/ping", getPing)
			v1.POST("/job", func(c *gin.Context) { postJob(c, o) })
		}
	}
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

// Listens and serves on the given address, e.g. ":8080"
func Serve(addr string, o Options) error {
	return NewRouter(o).Run(addr)
}

func getIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", web.IndexHTML)
}

func getPing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "pong",
	})
}

func printArgs(logWriter io.Writer, prefix, suffix string, args interface{}) error {
	m, err := json.MarshalIndent(args, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(logWriter, "%s%s%s", prefix, string(m), suffix)
	return nil
}

// Runs a job given as JSON operator in the request body, streaming the log as plain text
func postJob(c *gin.Context, o Options) {
	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	op, err := ops.UnmarshalOperator(raw)
	if err != nil {
		jobsTotal.WithLabelValues("invalid").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	jobID := uuid.New()
	logWriter := c.Writer
	header := logWriter.Header()
	header.Set("Content-Type", "text/plain")
	header.Set("X-Job-ID", jobID.String())
	logWriter.WriteHeader(http.StatusOK)

	fmt.Fprintf(logWriter, "Job %s\n", jobID)
	if err := printArgs(logWriter, "Arguments:\n", "\n", op); err != nil {
		fmt.Fprintf(logWriter, "Error printing arguments: %s\n", err.Error())
	}

	ctx := ops.NewContext(logWriter)
	ctx.MaxThreads = o.MaxThreads
	ctx.MemoryMB = o.MemoryMB
	ctx.OnSolve = func(iterations int) { solverIterations.Add(float64(iterations)) }

	start := time.Now()
	err = ops.RunJob(op, ctx)
	jobDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		jobsTotal.WithLabelValues("failed").Inc()
		fmt.Fprintf(logWriter, "Error: %s\n", err.Error())
	} else {
		jobsTotal.WithLabelValues("ok").Inc()
		fmt.Fprintf(logWriter, "Job %s done in %s\n", jobID, time.Since(start).Round(time.Millisecond))
	}
	logWriter.Flush()
}
