package handlers

import (
	_ "embed"
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// OpenAPIPath serves the API description consumed by the Swagger UI.
const OpenAPIPath = "/openapi.json"

//go:embed openapi.json
var openAPIDocument []byte

// RegisterSwagger mounts the OpenAPI document and the Swagger UI that renders it.
func RegisterSwagger(r *gin.Engine) {
	r.GET(OpenAPIPath, func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json; charset=utf-8", openAPIDocument)
	})
	r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL(OpenAPIPath)))
}
