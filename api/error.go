package api

import (
	"errors"

	"github.com/gin-gonic/gin"
)

var (
	ErrAdminRoleRequired = errors.New("requires admin role")
)

func errorResponse(err error) gin.H {
	return gin.H{"error": err.Error()}
}
