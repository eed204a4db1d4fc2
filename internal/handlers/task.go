package handlers

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/huangang/taskflow/internal/middleware"
	"github.com/huangang/taskflow/internal/services"
	"github.com/huangang/taskflow/pkg/response"
)

type TaskHandler struct {
	taskService *services.TaskService
}

func NewTaskHandler(taskService *services.TaskService) *TaskHandler {
	return &TaskHandler{taskService: taskService}
}

// Create adds a task to the bottom of its column
// POST /api/projects/:id/tasks
func (h *TaskHandler) Create(c *gin.Context) {
	var req services.CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	task, err := h.taskService.Create(c.Request.Context(), middleware.GetActor(c), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Created(c, task)
}

// List returns paginated tasks of a project
// GET /api/projects/:id/tasks
func (h *TaskHandler) List(c *gin.Context) {
	var req services.TaskListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	resp, err := h.taskService.List(c.Request.Context(), middleware.GetActor(c), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, resp)
}

// Board returns the project's columns in position order
// GET /api/projects/:id/board
func (h *TaskHandler) Board(c *gin.Context) {
	board, err := h.taskService.Board(c.Request.Context(), middleware.GetActor(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, board)
}

// ListArchived returns the project's archived tasks
// GET /api/projects/:id/archived-tasks
func (h *TaskHandler) ListArchived(c *gin.Context) {
	tasks, err := h.taskService.ListArchived(c.Request.Context(), middleware.GetActor(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, tasks)
}

type TimelineQuery struct {
	From string `form:"from" binding:"required"`
	To   string `form:"to" binding:"required"`
}

// Timeline returns open tasks scheduled within a date range
// GET /api/projects/:id/timeline?from=2026-03-01&to=2026-03-31
func (h *TaskHandler) Timeline(c *gin.Context) {
	var q TimelineQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	from, err := time.Parse(time.DateOnly, q.From)
	if err != nil {
		response.BadRequest(c, "from must be a date like 2006-01-02")
		return
	}
	to, err := time.Parse(time.DateOnly, q.To)
	if err != nil {
		response.BadRequest(c, "to must be a date like 2006-01-02")
		return
	}

	tasks, err := h.taskService.Timeline(c.Request.Context(), middleware.GetActor(c), c.Param("id"), from, to)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, tasks)
}

// Calendar returns open tasks starting or due in one month
// GET /api/projects/:id/calendar?year=2026&month=3
func (h *TaskHandler) Calendar(c *gin.Context) {
	year, err := strconv.Atoi(c.Query("year"))
	if err != nil {
		response.BadRequest(c, "year is required")
		return
	}
	month, err := strconv.Atoi(c.Query("month"))
	if err != nil {
		response.BadRequest(c, "month is required")
		return
	}

	tasks, err := h.taskService.Calendar(c.Request.Context(), middleware.GetActor(c), c.Param("id"), year, time.Month(month))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, tasks)
}

// GetByID
// GET /api/tasks/:id
func (h *TaskHandler) GetByID(c *gin.Context) {
	task, err := h.taskService.GetByID(c.Request.Context(), middleware.GetActor(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, task)
}

// GetByKey resolves a human-readable key such as PROJ-12
// GET /api/browse/:key
func (h *TaskHandler) GetByKey(c *gin.Context) {
	task, err := h.taskService.GetByKey(c.Request.Context(), middleware.GetActor(c), c.Param("key"))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, task)
}

// Update applies a partial patch
// PUT /api/tasks/:id
func (h *TaskHandler) Update(c *gin.Context) {
	var req services.UpdateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	task, err := h.taskService.Update(c.Request.Context(), middleware.GetActor(c), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, task)
}

// Move places a task in a column relative to an anchor task
// POST /api/tasks/:id/move
func (h *TaskHandler) Move(c *gin.Context) {
	var req services.MoveTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	task, err := h.taskService.Move(c.Request.Context(), middleware.GetActor(c), c.Param("id"), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, task)
}

type setParentRequest struct {
	ParentTaskID *string `json:"parent_task_id"`
}

// SetParent attaches the task to a parent, or detaches it when parent_task_id is null
// PUT /api/tasks/:id/parent
func (h *TaskHandler) SetParent(c *gin.Context) {
	var req setParentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	task, err := h.taskService.SetParent(c.Request.Context(), middleware.GetActor(c), c.Param("id"), req.ParentTaskID)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, task)
}

// Subtasks returns the direct children of a task
// GET /api/tasks/:id/subtasks
func (h *TaskHandler) Subtasks(c *gin.Context) {
	tasks, err := h.taskService.Subtasks(c.Request.Context(), middleware.GetActor(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, tasks)
}

// Delete
// DELETE /api/tasks/:id
func (h *TaskHandler) Delete(c *gin.Context) {
	if err := h.taskService.Delete(c.Request.Context(), middleware.GetActor(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, gin.H{"message": "deleted"})
}

// AssignedToMe returns the caller's open tasks across projects
// GET /api/me/tasks
func (h *TaskHandler) AssignedToMe(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	tasks, err := h.taskService.AssignedTo(c.Request.Context(), middleware.GetUserID(c), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	response.Success(c, tasks)
}
