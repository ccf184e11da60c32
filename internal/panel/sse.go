package panel

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"switchboard/internal/models"
)

// activityEvent holds data for an activity SSE event.
type activityEvent struct {
	ID          uint   `json:"id"`
	CommunityID string `json:"community_id"`
	Event       string `json:"event"`
	UserName    string `json:"user_name"`
	Content     string `json:"content"`
}

// handleSSE streams new audit entries to the client as they are written.
func handleSSE(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		writeSSE(c.Writer, "connected", map[string]string{"type": "connected"})
		c.Writer.Flush()

		// No DB means no feed; tests use nil DB.
		if db == nil {
			return
		}

		// Only alert on entries written after the client connected.
		var lastSeenID uint
		var latest models.AuditEntry
		if err := db.Order("id DESC").Limit(1).First(&latest).Error; err == nil {
			lastSeenID = latest.ID
		}

		ctx := c.Request.Context()
		ticker := time.NewTicker(3 * time.Second)
		heartbeat := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				writeSSE(c.Writer, "heartbeat", map[string]string{
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				})
				c.Writer.Flush()
			case <-ticker.C:
				var entries []models.AuditEntry
				db.Where("id > ?", lastSeenID).Order("id ASC").Find(&entries)
				if len(entries) == 0 {
					continue
				}
				lastSeenID = entries[len(entries)-1].ID
				for _, entry := range entries {
					writeSSE(c.Writer, "activity", activityEvent{
						ID:          entry.ID,
						CommunityID: entry.CommunityID,
						Event:       entry.Event,
						UserName:    entry.UserName,
						Content:     entry.Content,
					})
				}
				c.Writer.Flush()
			}
		}
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
