package http

import (
	"fmt"
	"time"

	"tinfoil-queue/internal/domain"
	"tinfoil-queue/internal/storage"
)

type DownloadResponse struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Source          string `json:"source"`
	Phase           string `json:"phase"`
	Percent         int    `json:"downloadPercent"`
	Speed           int64  `json:"speed"`
	SpeedDisplay    string `json:"speedDisplay"`
	DownloadedBytes int64  `json:"downloadedBytes"`
	TotalBytes      int64  `json:"totalBytes"`
	ETASeconds      int64  `json:"eta"`
	Peers           int    `json:"peers"`
	ErrorKind       string `json:"errorKind,omitempty"`
	Error           string `json:"error,omitempty"`
	CreatedAt       string `json:"createdAt"`
	StartedAt       string `json:"startedAt,omitempty"`
	CompletedAt     string `json:"completedAt,omitempty"`
}

type QueueSlotResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Position int    `json:"position"`
	AddedAt  string `json:"addedAt"`
}

type StatusResponse struct {
	Active    []DownloadResponse  `json:"active"`
	Queue     []QueueSlotResponse `json:"queue"`
	Completed []DownloadResponse  `json:"completed"`
}

type HistoryResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Files       int    `json:"files"`
	Size        string `json:"size"`
	SizeBytes   int64  `json:"sizeBytes"`
	Folder      string `json:"folder"`
	Duration    int64  `json:"duration"`
	Source      string `json:"source"`
	CompletedAt string `json:"completedAt"`
}

type CatalogResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Filename  string `json:"filename"`
	TitleID   string `json:"titleId,omitempty"`
	Version   int    `json:"version"`
	Size      int64  `json:"size"`
	URL       string `json:"url,omitempty"`
	Path      string `json:"path,omitempty"`
	IndexedAt string `json:"indexedAt"`
}

type ArchiveObjectResponse struct {
	Key          string `json:"key"`
	Size         int64  `json:"size"`
	SizeDisplay  string `json:"sizeDisplay"`
	LastModified string `json:"lastModified,omitempty"`
}

func archiveObjectToResponse(obj storage.ObjectInfo) ArchiveObjectResponse {
	resp := ArchiveObjectResponse{
		Key:         obj.Key,
		Size:        obj.Size,
		SizeDisplay: formatBytes(obj.Size),
	}
	if obj.LastModified != nil {
		resp.LastModified = obj.LastModified.Format(time.RFC3339)
	}
	return resp
}

func itemToResponse(item domain.DownloadItem) DownloadResponse {
	resp := DownloadResponse{
		ID:              item.ID,
		Name:            item.Name,
		Source:          string(item.Source),
		Phase:           string(item.Phase),
		Percent:         item.Metrics.Percent,
		Speed:           item.Metrics.Speed,
		SpeedDisplay:    fmt.Sprintf("%s/s", formatBytes(item.Metrics.Speed)),
		DownloadedBytes: item.Metrics.DownloadedBytes,
		TotalBytes:      item.Metrics.TotalBytes,
		ETASeconds:      item.Metrics.ETASeconds,
		Peers:           item.Metrics.Peers,
		ErrorKind:       string(item.ErrorKind),
		Error:           item.Error,
		CreatedAt:       item.CreatedAt.Format(time.RFC3339),
	}
	if item.StartedAt != nil {
		resp.StartedAt = item.StartedAt.Format(time.RFC3339)
	}
	if item.CompletedAt != nil {
		resp.CompletedAt = item.CompletedAt.Format(time.RFC3339)
	}
	return resp
}

func historyToResponse(entry domain.HistoryEntry) HistoryResponse {
	return HistoryResponse{
		ID:          entry.ID,
		Name:        entry.Name,
		Files:       entry.Files,
		Size:        formatBytes(entry.Size),
		SizeBytes:   entry.Size,
		Folder:      entry.Folder,
		Duration:    entry.Duration,
		Source:      string(entry.Source),
		CompletedAt: entry.CompletedAt.Format(time.RFC3339),
	}
}

func catalogToResponse(entry domain.CatalogEntry) CatalogResponse {
	return CatalogResponse{
		ID:        entry.ID,
		Name:      entry.Name,
		Filename:  entry.Filename,
		TitleID:   entry.TitleID,
		Version:   entry.Version,
		Size:      entry.Size,
		URL:       entry.URL,
		Path:      entry.Path,
		IndexedAt: entry.IndexedAt.Format(time.RFC3339),
	}
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%dB", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f%ciB",
		float64(b)/float64(div),
		"KMGTPE"[exp],
	)
}
