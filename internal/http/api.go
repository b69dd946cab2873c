package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"tinfoil-queue/internal/domain"
	"tinfoil-queue/internal/queue"
	"tinfoil-queue/internal/repository"
	"tinfoil-queue/internal/service"
	"tinfoil-queue/internal/storage"
	"tinfoil-queue/internal/torrentfile"
)

// maxTorrentPayload bounds uploaded .torrent files.
const maxTorrentPayload = 10 << 20

// ArchiveConfig points the archive listing at the configured bucket. A nil
// Storage disables the endpoint.
type ArchiveConfig struct {
	Storage   storage.Service
	Bucket    string
	KeyPrefix string
}

// Handler wires HTTP routes to the queue controller and domain services.
type Handler struct {
	controller  *queue.Controller
	catalog     service.CatalogService
	credentials service.CredentialService
	history     repository.HistoryRepository
	archive     ArchiveConfig
	jwtSecret   string
}

func NewHandler(controller *queue.Controller, catalog service.CatalogService, credentials service.CredentialService, history repository.HistoryRepository, archive ArchiveConfig, jwtSecret string) *Handler {
	return &Handler{
		controller:  controller,
		catalog:     catalog,
		credentials: credentials,
		history:     history,
		archive:     archive,
		jwtSecret:   jwtSecret,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.Use(corsMiddleware())

	api := router.Group("/api")
	api.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
	})

	authed := api.Group("", authRequired(h.jwtSecret))
	{
		authed.GET("/downloads/status", h.status)
		authed.GET("/downloads/history", h.listHistory)
		authed.GET("/downloads/stats", h.stats)
		authed.GET("/downloads/:id", h.getDownload)
		authed.GET("/catalog", h.listCatalog)
	}

	admin := authed.Group("", adminRequired())
	{
		admin.POST("/downloads", h.submitDownload)
		admin.POST("/downloads/cancel/:id", h.cancelDownload)
		admin.POST("/downloads/:id/pause", h.pauseDownload)
		admin.POST("/downloads/:id/resume", h.resumeDownload)
		admin.PUT("/settings/max-concurrent", h.setMaxConcurrent)
		admin.POST("/credentials", h.generateCredentials)
		admin.GET("/archive", h.listArchive)
	}
}

// jsonDownloadRequest carries either a search-resolved bot command or a raw
// magnet link.
type jsonDownloadRequest struct {
	Command  string `json:"command"`
	GameName string `json:"gameName"`
	Magnet   string `json:"magnet"`
}

func (h *Handler) submitDownload(c *gin.Context) {
	sub, ok := h.buildSubmission(c)
	if !ok {
		return
	}

	res, err := h.controller.Submit(c.Request.Context(), sub)
	if err != nil {
		var dup *service.DuplicateError
		switch {
		case errors.As(err, &dup):
			c.JSON(http.StatusConflict, gin.H{"error": dup.Error(), "against": string(dup.Against)})
		case errors.Is(err, queue.ErrNameRequired):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	resp := gin.H{
		"success": true,
		"id":      res.Item.ID,
		"name":    res.Item.Name,
		"queued":  res.Queued,
	}
	if res.Queued {
		resp["position"] = res.Position
	}
	c.JSON(http.StatusAccepted, resp)
}

// buildSubmission accepts either a multipart torrent upload or a JSON
// search-resolved descriptor.
func (h *Handler) buildSubmission(c *gin.Context) (queue.Submission, bool) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		file, header, err := c.Request.FormFile("torrentFile")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "torrentFile is required"})
			return queue.Submission{}, false
		}
		defer file.Close()

		if !torrentfile.ValidFilename(header.Filename) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "only .torrent files are allowed"})
			return queue.Submission{}, false
		}

		payload, err := io.ReadAll(io.LimitReader(file, maxTorrentPayload+1))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("read torrent file: %v", err)})
			return queue.Submission{}, false
		}
		if len(payload) > maxTorrentPayload {
			c.JSON(http.StatusBadRequest, gin.H{"error": "torrent file too large"})
			return queue.Submission{}, false
		}

		info, err := torrentfile.Parse(payload)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return queue.Submission{}, false
		}

		return queue.Submission{
			Name:       info.Name,
			Filename:   header.Filename,
			Source:     domain.SourceTorrentFile,
			Payload:    payload,
			TotalBytes: info.Size,
			Files:      info.Files,
		}, true
	}

	var req jsonDownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return queue.Submission{}, false
	}

	if req.Magnet != "" {
		if !strings.HasPrefix(req.Magnet, "magnet:?") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid magnet link"})
			return queue.Submission{}, false
		}
		name := req.GameName
		displayName := magnetDisplayName(req.Magnet)
		if name == "" {
			name = displayName
		}
		if name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "magnet link carries no display name, gameName is required"})
			return queue.Submission{}, false
		}
		return queue.Submission{
			Name:     name,
			Filename: displayName,
			Source:   domain.SourceMagnet,
			Magnet:   req.Magnet,
		}, true
	}

	if req.Command == "" || req.GameName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "command and gameName are required"})
		return queue.Submission{}, false
	}
	return queue.Submission{
		Name:    req.GameName,
		Source:  domain.SourceSearchCommand,
		Command: req.Command,
	}, true
}

// magnetDisplayName extracts the dn parameter from a magnet URI.
func magnetDisplayName(magnet string) string {
	values, err := url.ParseQuery(strings.TrimPrefix(magnet, "magnet:?"))
	if err != nil {
		return ""
	}
	return values.Get("dn")
}

func (h *Handler) status(c *gin.Context) {
	snap := h.controller.Snapshot()

	resp := StatusResponse{
		Active:    make([]DownloadResponse, len(snap.Active)),
		Queue:     make([]QueueSlotResponse, len(snap.Queue)),
		Completed: make([]DownloadResponse, len(snap.Completed)),
	}
	for i := range snap.Active {
		resp.Active[i] = itemToResponse(snap.Active[i])
	}
	for i := range snap.Queue {
		resp.Queue[i] = QueueSlotResponse{
			ID:       snap.Queue[i].ID,
			Name:     snap.Queue[i].Name,
			Position: snap.Queue[i].Position,
			AddedAt:  snap.Queue[i].AddedAt.Format(time.RFC3339),
		}
	}
	for i := range snap.Completed {
		resp.Completed[i] = itemToResponse(snap.Completed[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) getDownload(c *gin.Context) {
	item, ok := h.controller.Item(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "download not found"})
		return
	}
	c.JSON(http.StatusOK, itemToResponse(item))
}

func (h *Handler) cancelDownload(c *gin.Context) {
	if !h.controller.Cancel(c.Param("id")) {
		c.JSON(http.StatusOK, gin.H{"success": false, "message": "download not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "download cancelled"})
}

func (h *Handler) pauseDownload(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": h.controller.Pause(c.Param("id"))})
}

func (h *Handler) resumeDownload(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": h.controller.Resume(c.Param("id"))})
}

func (h *Handler) listHistory(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	entries, err := h.history.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]HistoryResponse, len(entries))
	for i := range entries {
		resp[i] = historyToResponse(entries[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) stats(c *gin.Context) {
	entries, err := h.history.List(c.Request.Context(), 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var totalSize int64
	for i := range entries {
		totalSize += entries[i].Size
	}
	resp := gin.H{
		"totalDownloads": len(entries),
		"totalSize":      formatBytes(totalSize),
	}
	if len(entries) > 0 {
		resp["lastDownload"] = entries[0].CompletedAt.Format(time.RFC3339)
	}
	c.JSON(http.StatusOK, resp)
}

// listArchive exposes what has been copied to object storage for completed
// downloads. 404 when no bucket is configured.
func (h *Handler) listArchive(c *gin.Context) {
	if h.archive.Storage == nil || h.archive.Bucket == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "archive storage is not configured"})
		return
	}

	prefix := h.archive.KeyPrefix
	if sub := c.Query("prefix"); sub != "" {
		prefix = strings.TrimSuffix(prefix, "/") + "/" + strings.TrimPrefix(sub, "/")
	}

	objects, err := h.archive.Storage.ListObjects(c.Request.Context(), h.archive.Bucket, prefix)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]ArchiveObjectResponse, len(objects))
	for i := range objects {
		resp[i] = archiveObjectToResponse(objects[i])
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) listCatalog(c *gin.Context) {
	entries, err := h.catalog.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	resp := make([]CatalogResponse, len(entries))
	for i := range entries {
		resp[i] = catalogToResponse(entries[i])
	}
	c.JSON(http.StatusOK, resp)
}

type maxConcurrentRequest struct {
	Limit int `json:"limit" binding:"required,min=1,max=10"`
}

func (h *Handler) setMaxConcurrent(c *gin.Context) {
	var req maxConcurrentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	applied := h.controller.SetMaxConcurrent(req.Limit)
	c.JSON(http.StatusOK, gin.H{"success": true, "maxConcurrent": applied})
}

type credentialRequest struct {
	Email string `json:"email" binding:"required,email"`
}

func (h *Handler) generateCredentials(c *gin.Context) {
	var req credentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	creds, err := h.credentials.Generate(req.Email)
	if err != nil {
		if errors.Is(err, service.ErrInvalidEmail) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tinfoilUser":     creds.Username,
		"tinfoilPass":     creds.Password,
		"tinfoilPassHash": creds.PasswordHash,
	})
}
