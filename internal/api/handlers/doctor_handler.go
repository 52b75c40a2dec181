package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/medivoice/internal/models"
)

type doctorView struct {
	ID          int    `json:"id"`
	Specialist  string `json:"specialist"`
	Description string `json:"description"`
	VoiceID     string `json:"voice_id"`
}

// ListDoctors serves the specialist catalog. Agent prompts stay server side.
func ListDoctors(c *gin.Context) {
	docs := models.Doctors()
	out := make([]doctorView, 0, len(docs))
	for _, d := range docs {
		out = append(out, doctorView{ID: d.ID, Specialist: d.Specialist, Description: d.Description, VoiceID: d.VoiceID})
	}
	c.JSON(http.StatusOK, gin.H{"doctors": out})
}
