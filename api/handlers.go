package api

import (
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/qubird/crudo/models"
	"github.com/qubird/crudo/pkg/coerce"
	"github.com/qubird/crudo/pkg/logger"
	"github.com/qubird/crudo/schema"
	"github.com/qubird/crudo/storage"
)

type Handler struct {
	registry *schema.Registry
	strg     storage.StorageI
	coercer  *coerce.Coercer
	log      logger.LoggerI
}

func NewHandler(registry *schema.Registry, strg storage.StorageI, log logger.LoggerI) *Handler {
	return &Handler{
		registry: registry,
		strg:     strg,
		coercer:  coerce.NewCoercer(log),
		log:      log,
	}
}

type modelMeta struct {
	Name      string                     `json:"name"`
	ModelName string                     `json:"model_name"`
	Columns   []models.ColumnDescriptor  `json:"columns"`
	PKColumns []string                   `json:"pk_columns"`
	Count     int64                      `json:"count"`
	Actions   []*models.ActionDescriptor `json:"actions"`
}

// ListModels serves the schema registry: columns, primary keys, cached
// counts and the actions visible to the caller's role.
func (h *Handler) ListModels(c *gin.Context) {
	role := roleFrom(c)

	result := []modelMeta{}
	for _, m := range h.registry.Models() {
		result = append(result, modelMeta{
			Name:      m.TableName,
			ModelName: m.DisplayName,
			Columns:   m.Columns,
			PKColumns: m.PKColumns,
			Count:     m.RowCount(),
			Actions:   m.ActionsFor(role),
		})
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) List(c *gin.Context) {
	m, err := h.registry.Get(c.Param("table"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	params, err := parseListParams(c)
	if err != nil {
		h.respondError(c, err)
		return
	}

	result, err := h.strg.Items().List(c.Request.Context(), m, params)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) Get(c *gin.Context) {
	m, err := h.registry.Get(c.Param("table"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	row, err := h.strg.Items().Get(c.Request.Context(), m, c.Param("pk"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, row)
}

func (h *Handler) Create(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}

	m, err := h.registry.Get(c.Param("table"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	payload := map[string]any{}
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.respondError(c, models.NewValidationError("invalid JSON body"))
		return
	}

	coerced, err := h.coercer.Payload(m.Columns, payload, false)
	if err != nil {
		h.respondError(c, err)
		return
	}

	row, err := h.strg.Items().Create(c.Request.Context(), m, coerced)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, row)
}

func (h *Handler) Update(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}

	m, err := h.registry.Get(c.Param("table"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	payload := map[string]any{}
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.respondError(c, models.NewValidationError("invalid JSON body"))
		return
	}

	coerced, err := h.coercer.Payload(m.Columns, payload, true)
	if err != nil {
		h.respondError(c, err)
		return
	}

	row, err := h.strg.Items().Update(c.Request.Context(), m, c.Param("pk"), coerced)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, row)
}

func (h *Handler) Delete(c *gin.Context) {
	if !h.requireAdmin(c) {
		return
	}

	m, err := h.registry.Get(c.Param("table"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	if err := h.strg.Items().Delete(c.Request.Context(), m, c.Param("pk")); err != nil {
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) RunAction(c *gin.Context) {
	m, err := h.registry.Get(c.Param("table"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	name := c.Param("name")
	action, ok := m.Action(name)
	if !ok {
		h.respondError(c, &models.NotFoundError{Message: "action '" + name + "' not found"})
		return
	}

	body := struct {
		Pks []string `json:"pks"`
	}{}
	if err := c.ShouldBindJSON(&body); err != nil {
		h.respondError(c, models.NewValidationError("invalid JSON body"))
		return
	}

	message, count, err := h.strg.Actions().Run(c.Request.Context(), m, action, body.Pks, roleFrom(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": message, "count": count})
}

func (h *Handler) requireAdmin(c *gin.Context) bool {
	if roleFrom(c) != models.RoleAdmin {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"detail": "Admin access required"})
		return false
	}
	return true
}

func parseListParams(c *gin.Context) (models.ListParams, error) {
	params := models.ListParams{
		SortBy:  c.Query("sort_by"),
		SortDir: c.DefaultQuery("sort_dir", "asc"),
		Search:  c.Query("search"),
	}

	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil {
		return params, &models.InvalidPageError{Message: "page must be an integer"}
	}
	params.Page = page

	perPage, err := strconv.Atoi(c.DefaultQuery("per_page", "25"))
	if err != nil {
		return params, &models.InvalidPageError{Message: "per_page must be an integer"}
	}
	params.PerPage = perPage

	return params, nil
}

type fieldDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (h *Handler) respondError(c *gin.Context, err error) {
	switch e := err.(type) {
	case *models.ValidationError:
		if len(e.Fields) > 0 {
			details := make([]fieldDetail, 0, len(e.Fields))
			names := make([]string, 0, len(e.Fields))
			for name := range e.Fields {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				details = append(details, fieldDetail{Field: name, Message: e.Fields[name]})
			}
			c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": details})
			return
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": e.Message})
	case *models.InvalidSortError, *models.InvalidPageError:
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
	case *models.NotFoundError:
		c.JSON(http.StatusNotFound, gin.H{"detail": e.Message})
	case *models.ForbiddenError:
		c.JSON(http.StatusForbidden, gin.H{"detail": e.Message})
	case *models.ConflictError:
		c.JSON(http.StatusConflict, gin.H{"detail": e.Message})
	case *models.ActionError:
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Action failed: " + e.Message})
	default:
		h.log.Error("unhandled engine error", logger.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal server error"})
	}
}
