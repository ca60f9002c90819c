// Package routes aggregates versioned route registrars.
package routes

import (
	"github.com/gin-gonic/gin"

	"assistant-server/internal/interfaces/httpserver/handlers"
	v1 "assistant-server/internal/interfaces/httpserver/routes/v1"
)

// Provider holds all versioned route registrars.
type Provider struct {
	V1 *v1.Routes
}

// NewProvider builds the route provider from the handler provider.
func NewProvider(handlerProvider *handlers.Provider) *Provider {
	return &Provider{
		V1: v1.NewRoutes(handlerProvider),
	}
}

// Register attaches every version's routes to the engine.
func (p *Provider) Register(engine *gin.Engine) {
	p.V1.Register(engine)
}
