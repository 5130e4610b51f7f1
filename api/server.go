// Package api serves a ClusterService over HTTP with gin.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"

	"github.com/gin-gonic/gin"

	"web/supercluster/cluster"
	"web/supercluster/runner"
)

// currentCluster in a path selects the most recently built pyramid.
const currentCluster = "current"

type Server struct {
	svc runner.ClusterService
}

func NewServer(svc runner.ClusterService) *Server {
	return &Server{svc: svc}
}

// Router returns a gin engine with the logger, recovery and CORS
// middleware and every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.Default()
	r.Use(corsMiddleware())
	s.RegisterRoutes(r)
	return r
}

func (s *Server) RegisterRoutes(r gin.IRouter) {
	r.GET("/api/clusters/list", s.listClusters)
	r.GET("/api/datasets", s.listDatasets)
	r.POST("/api/clusters", s.createCluster)
	r.DELETE("/api/clusters/:id", s.deleteCluster)

	r.GET("/api/clusters", s.getClusters)
	r.GET("/api/clusters/summary", s.getSummary)
	r.GET("/api/tiles/:z/:x/:y", s.getTile)

	nodes := r.Group("/api/clusters/:id/nodes/:node")
	nodes.GET("/children", s.getChildren)
	nodes.GET("/leaves", s.getLeaves)
	nodes.GET("/expansion-zoom", s.getExpansionZoom)
	nodes.GET("/geometry", s.getGeometry)
	nodes.GET("/descendants", s.getDescendants)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, runner.ErrClusterNotFound),
		errors.Is(err, cluster.ErrUnknownCluster),
		errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, cluster.ErrInvalidClusterID),
		errors.Is(err, cluster.ErrInvalidTile),
		errors.Is(err, runner.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, cluster.ErrConfiguration):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func clusterID(c *gin.Context) string {
	if id := c.Param("id"); id != currentCluster {
		return id
	}
	return ""
}

func queryFloat(c *gin.Context, name string) (float64, error) {
	v, err := strconv.ParseFloat(c.Query(name), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s parameter", name)
	}
	return v, nil
}

func queryInt(c *gin.Context, name, fallback string) (int, error) {
	v, err := strconv.Atoi(c.DefaultQuery(name, fallback))
	if err != nil {
		return 0, fmt.Errorf("invalid %s parameter", name)
	}
	return v, nil
}

const (
	defaultLeavesLimit = 10
	maxLeavesLimit     = 1000
)

// leavesLimit keeps one leaves request to a bounded page.
func leavesLimit(limit int) int {
	if limit <= 0 {
		return defaultLeavesLimit
	}
	return min(limit, maxLeavesLimit)
}

// viewportRequest reads zoom, north, south, east, west and an optional id
// from the query string.
func viewportRequest(c *gin.Context) (*runner.GetClustersRequest, error) {
	zoom, err := strconv.Atoi(c.Query("zoom"))
	if err != nil {
		return nil, fmt.Errorf("invalid zoom parameter")
	}
	req := &runner.GetClustersRequest{ClusterID: c.Query("id"), Zoom: zoom}
	for _, f := range []struct {
		name string
		dst  *float64
	}{
		{"north", &req.Bounds.North},
		{"south", &req.Bounds.South},
		{"east", &req.Bounds.East},
		{"west", &req.Bounds.West},
	} {
		if *f.dst, err = queryFloat(c, f.name); err != nil {
			return nil, err
		}
	}
	return req, nil
}

func nodeRequest(c *gin.Context) (*runner.NodeRequest, error) {
	node, err := strconv.ParseUint(c.Param("node"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid node %q", c.Param("node"))
	}
	return &runner.NodeRequest{ClusterID: clusterID(c), Node: node}, nil
}

func (s *Server) listClusters(c *gin.Context) {
	resp, err := s.svc.ListClusters(c.Request.Context(), &runner.ListClustersRequest{})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp.Clusters)
}

func (s *Server) listDatasets(c *gin.Context) {
	resp, err := s.svc.ListDatasets(c.Request.Context(), &runner.ListDatasetsRequest{})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp.Datasets)
}

func (s *Server) createCluster(c *gin.Context) {
	var req runner.CreateClusterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, fmt.Errorf("invalid request: %w", err))
		return
	}
	resp, err := s.svc.CreateCluster(c.Request.Context(), &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp.Cluster)
}

func (s *Server) deleteCluster(c *gin.Context) {
	if _, err := s.svc.DeleteCluster(c.Request.Context(), &runner.DeleteClusterRequest{ClusterID: c.Param("id")}); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) getClusters(c *gin.Context) {
	req, err := viewportRequest(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	resp, err := s.svc.GetClusters(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("X-Cluster-Id", resp.ClusterID)
	c.JSON(http.StatusOK, cluster.ToGeoJSON(resp.Records))
}

func (s *Server) getSummary(c *gin.Context) {
	req, err := viewportRequest(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	resp, err := s.svc.GetSummary(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp.Summary)
}

func (s *Server) getTile(c *gin.Context) {
	var coords [3]int
	for i, name := range []string{"z", "x", "y"} {
		v, err := strconv.Atoi(c.Param(name))
		if err != nil {
			badRequest(c, fmt.Errorf("invalid tile %s", name))
			return
		}
		coords[i] = v
	}
	resp, err := s.svc.GetTile(c.Request.Context(), &runner.GetTileRequest{
		ClusterID: c.Query("id"),
		Z:         coords[0],
		X:         coords[1],
		Y:         coords[2],
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("X-Cluster-Id", resp.ClusterID)
	c.JSON(http.StatusOK, cluster.ToGeoJSON(resp.Records))
}

func (s *Server) getChildren(c *gin.Context) {
	req, err := nodeRequest(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	resp, err := s.svc.GetChildren(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cluster.ToGeoJSON(resp.Records))
}

func (s *Server) getLeaves(c *gin.Context) {
	req, err := nodeRequest(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	limit, err := queryInt(c, "limit", strconv.Itoa(defaultLeavesLimit))
	if err != nil {
		badRequest(c, err)
		return
	}
	limit = leavesLimit(limit)
	offset, err := queryInt(c, "offset", "0")
	if err != nil {
		badRequest(c, err)
		return
	}
	resp, err := s.svc.GetLeaves(c.Request.Context(), &runner.LeavesRequest{
		ClusterID: req.ClusterID,
		Node:      req.Node,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, cluster.ToGeoJSON(resp.Records))
}

func (s *Server) getExpansionZoom(c *gin.Context) {
	req, err := nodeRequest(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	resp, err := s.svc.GetExpansionZoom(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"zoom": resp.Zoom})
}

func (s *Server) getGeometry(c *gin.Context) {
	req, err := nodeRequest(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	resp, err := s.svc.GetGeometry(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp.Geometry)
}

func (s *Server) getDescendants(c *gin.Context) {
	req, err := nodeRequest(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	resp, err := s.svc.GetDescendants(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ids": resp.IDs})
}
