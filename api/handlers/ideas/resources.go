package ideas

import (
	"context"
	"strconv"

	"contentstudio/api/handlers/common"
	"contentstudio/internal/catalog"
	"contentstudio/internal/infra/queue"
	"contentstudio/internal/visual"
	"contentstudio/internal/workflow"

	"github.com/gin-gonic/gin"
)

// MediaLibrary 素材库
type MediaLibrary interface {
	Library(ctx context.Context) ([]visual.LibraryItem, error)
}

// QueueInspector 后台队列统计
type QueueInspector interface {
	Stats() ([]queue.QueueStats, error)
}

// RecentIdeas 最近更新的想法
type RecentIdeas interface {
	ListRecent(ctx context.Context, limit int) ([]*workflow.IdeaRecord, error)
}

// ResourceHandler 格式目录、想法列表、素材库与队列状态
type ResourceHandler struct {
	library MediaLibrary
	queues  QueueInspector
	recent  RecentIdeas
}

// NewResourceHandler 创建 ResourceHandler；参数均可为 nil
func NewResourceHandler(library MediaLibrary, queues QueueInspector, recent RecentIdeas) *ResourceHandler {
	return &ResourceHandler{library: library, queues: queues, recent: recent}
}

// ListIdeas 最近更新的想法
// GET /api/v1/ideas?limit=20
func (h *ResourceHandler) ListIdeas(c *gin.Context) {
	var list []*workflow.IdeaRecord
	if h.recent != nil {
		limit, _ := strconv.Atoi(c.Query("limit"))
		var err error
		if list, err = h.recent.ListRecent(c.Request.Context(), limit); err != nil {
			common.FromError(c, err)
			return
		}
	}
	if list == nil {
		list = []*workflow.IdeaRecord{}
	}
	common.OK(c, common.ListResponse{Items: list, Total: len(list)})
}

// ListFormats 格式目录
// GET /api/v1/formats
func (h *ResourceHandler) ListFormats(c *gin.Context) {
	all := catalog.All()
	common.OK(c, common.ListResponse{Items: all, Total: len(all)})
}

// ListMedia 素材库
// GET /api/v1/media
func (h *ResourceHandler) ListMedia(c *gin.Context) {
	var items []visual.LibraryItem
	if h.library != nil {
		var err error
		if items, err = h.library.Library(c.Request.Context()); err != nil {
			common.FromError(c, err)
			return
		}
	}
	if items == nil {
		items = []visual.LibraryItem{}
	}
	common.OK(c, common.ListResponse{Items: items, Total: len(items)})
}

// QueueStats 后台队列统计
// GET /api/v1/queues
func (h *ResourceHandler) QueueStats(c *gin.Context) {
	var stats []queue.QueueStats
	if h.queues != nil {
		var err error
		if stats, err = h.queues.Stats(); err != nil {
			common.FromError(c, err)
			return
		}
	}
	if stats == nil {
		stats = []queue.QueueStats{}
	}
	common.OK(c, common.ListResponse{Items: stats, Total: len(stats)})
}
