package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/LJTian/CryptoNewsBot/internal/pipeline"
	"github.com/LJTian/CryptoNewsBot/internal/scheduler"
	"github.com/LJTian/CryptoNewsBot/internal/storage"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Controller 调度器对外暴露的状态与触发入口
type Controller interface {
	LastReport() (pipeline.Report, bool)
	Running() bool
	Next() time.Time
	Trigger(trigger string) error
}

// LinkLister 已发布链接列表
type LinkLister interface {
	Links(ctx context.Context) []string
}

type Server struct {
	sched Controller
	// runs 为 nil 时 /runs 返回 404
	runs  storage.RunStore
	links LinkLister
}

func NewServer(sched Controller, runs storage.RunStore, links LinkLister) *Server {
	return &Server{sched: sched, runs: runs, links: links}
}

// NewEngine 组装 gin 引擎；user/pass 非空时 /api/v1 需要 Basic Auth，/health 始终开放
func NewEngine(s *Server, user, pass string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	config.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	r.Use(cors.New(config))

	s.RegisterRoutes(r, adminAuth(user, pass)...)
	return r
}

// RegisterRoutes auth 只作用于 /api/v1 分组
func (s *Server) RegisterRoutes(r gin.IRouter, auth ...gin.HandlerFunc) {
	r.GET("/health", s.health)

	v1 := r.Group("/api/v1", auth...)
	{
		v1.GET("/status", s.status)
		v1.GET("/runs", s.listRuns)
		v1.GET("/posted", s.listPosted)
		v1.POST("/run", s.triggerRun)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) status(c *gin.Context) {
	data := gin.H{"running": s.sched.Running()}
	if next := s.sched.Next(); !next.IsZero() {
		data["nextRun"] = next
	}
	if rep, ok := s.sched.LastReport(); ok {
		data["lastRun"] = rep
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    data,
	})
}

func (s *Server) listRuns(c *gin.Context) {
	if s.runs == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "not_found",
			"message": "run history requires the postgres store backend",
		})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		limit = 20
	}

	runs, err := s.runs.ListRuns(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "internal_error",
			"message": "internal server error",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    runs,
	})
}

func (s *Server) listPosted(c *gin.Context) {
	links := []string{}
	if s.links != nil {
		if l := s.links.Links(c.Request.Context()); l != nil {
			links = l
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    gin.H{"count": len(links), "links": links},
	})
}

func (s *Server) triggerRun(c *gin.Context) {
	err := s.sched.Trigger(scheduler.TriggerAPI)
	if errors.Is(err, scheduler.ErrAlreadyRunning) {
		c.JSON(http.StatusConflict, gin.H{
			"code":    "already_running",
			"message": err.Error(),
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "internal_error",
			"message": "internal server error",
		})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"code":    "accepted",
		"message": "run started",
	})
}
