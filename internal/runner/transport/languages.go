package transport

import (
	"liverun/internal/runner/language"
	"liverun/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

// LanguageView is the public description of a supported language.
type LanguageView struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Compiled bool   `json:"compiled"`
}

// Languages lists the registry; the table never changes so the view is built once.
func Languages(reg *language.Registry) gin.HandlerFunc {
	specs := reg.List()
	views := make([]LanguageView, 0, len(specs))
	for _, spec := range specs {
		views = append(views, LanguageView{ID: spec.ID, Name: spec.Name, Compiled: spec.NeedsCompile()})
	}
	return func(c *gin.Context) {
		response.Success(c, gin.H{"languages": views})
	}
}
