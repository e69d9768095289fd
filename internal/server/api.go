package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	restaurantdomain "github.com/dineline/dineline/internal/restaurant/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	restaurants := api.Group("/restaurants/:id")
	restaurants.GET("", s.handleGetRestaurant)
	restaurants.GET("/calls", s.handleListCalls)
	restaurants.PUT("/wait-time", s.handleSetWaitTime)
	restaurants.DELETE("/wait-time", s.handleClearWaitTime)
	restaurants.GET("/menu-overrides", s.handleListOverrides)
	restaurants.POST("/menu-overrides", s.handleCreateOverride)
	restaurants.DELETE("/menu-overrides/:overrideID", s.handleDeleteOverride)
}

func pathID(c *gin.Context, name string) (snowflake.ID, bool) {
	id, err := snowflake.ParseString(c.Param(name))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_id"})
		return 0, false
	}
	return id, true
}

func (s *Server) handleGetRestaurant(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	restaurant, err := s.restaurantSvc.GetRestaurant(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, restaurant)
}

func (s *Server) handleListCalls(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	calls, err := s.callSvc.List(c.Request.Context(), id, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": calls})
}

type setWaitTimePayload struct {
	Minutes int        `json:"minutes"`
	ResetAt *time.Time `json:"reset_at"`
}

func (s *Server) handleSetWaitTime(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var payload setWaitTimePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_payload"})
		return
	}
	restaurant, err := s.restaurantSvc.SetWaitTime(c.Request.Context(), id, restaurantdomain.SetWaitTimeRequest{
		Minutes: payload.Minutes,
		ResetAt: payload.ResetAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, restaurant)
}

func (s *Server) handleClearWaitTime(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	restaurant, err := s.restaurantSvc.ClearWaitTime(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, restaurant)
}

func (s *Server) handleListOverrides(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	overrides, err := s.restaurantSvc.ListActiveOverrides(c.Request.Context(), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"overrides": overrides})
}

type createOverridePayload struct {
	ItemName string     `json:"item_name" binding:"required"`
	Reason   string     `json:"reason"`
	ResetAt  *time.Time `json:"reset_at"`
}

func (s *Server) handleCreateOverride(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var payload createOverridePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_payload"})
		return
	}
	override, err := s.restaurantSvc.CreateMenuOverride(c.Request.Context(), restaurantdomain.CreateOverrideRequest{
		RestaurantID: id,
		ItemName:     payload.ItemName,
		Reason:       payload.Reason,
		ResetAt:      payload.ResetAt,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, override)
}

func (s *Server) handleDeleteOverride(c *gin.Context) {
	if _, ok := pathID(c, "id"); !ok {
		return
	}
	overrideID, ok := pathID(c, "overrideID")
	if !ok {
		return
	}
	if err := s.restaurantSvc.DeleteMenuOverride(c.Request.Context(), overrideID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
