package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vastra-ai/vastra/internal/catalog"
)

func (s *Server) handleListProducts(c *gin.Context) {
	params := catalog.ListParams{
		Brand:       c.Query("brand"),
		StockStatus: c.Query("stock_status"),
		SortBy:      c.DefaultQuery("sort_by", "product_id"),
		SortOrder:   c.DefaultQuery("sort_order", "asc"),
	}

	if v := c.Query("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			params.Page = n
		}
	}
	if v := c.Query("page_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			params.PageSize = n
		}
	}
	if v := c.Query("category_id"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category_id"})
			return
		}
		params.CategoryID = &n
	}
	if v := c.Query("min_price"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			params.MinPrice = &f
		}
	}
	if v := c.Query("max_price"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 {
			params.MaxPrice = &f
		}
	}
	if v := c.Query("filters"); v != "" {
		if err := json.Unmarshal([]byte(v), &params.Filters); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid filters JSON"})
			return
		}
	}

	result, err := s.catalog.List(c.Request.Context(), params)
	if err != nil {
		if errors.Is(err, catalog.ErrBadFilter) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list products"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleGetProduct(c *gin.Context) {
	detail, err := s.catalog.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "product not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load product"})
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (s *Server) handleBatchProducts(c *gin.Context) {
	var ids []string
	if err := c.ShouldBindJSON(&ids); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expected a JSON array of product IDs"})
		return
	}

	products, err := s.catalog.GetBatch(c.Request.Context(), ids)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load products"})
		return
	}
	if products == nil {
		products = []catalog.Product{}
	}
	c.JSON(http.StatusOK, products)
}

func (s *Server) handleFilters(c *gin.Context) {
	raw := c.Query("category_id")
	if raw == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "category_id is required"})
		return
	}
	categoryID, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category_id"})
		return
	}

	result, err := s.catalog.Filters(c.Request.Context(), categoryID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "category not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load filters"})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleCategories(c *gin.Context) {
	categories, err := s.catalog.Categories(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list categories"})
		return
	}
	if categories == nil {
		categories = []catalog.Category{}
	}
	c.JSON(http.StatusOK, categories)
}
