package core

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// respondError sends unified error payload {"error": {"code", "message"}}.
func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorBody(code, message))
}

func errorBody(code, message string) gin.H {
	return gin.H{"error": gin.H{"code": code, "message": message}}
}

// writeJSON is the net/http counterpart of c.JSON.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError is the net/http counterpart of respondError.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody(code, message))
}

// navStatus maps a navigation mode onto an HTTP redirect. A 302 bounce
// leaves no history entry for the guarded URL; a 303 after a POST is an
// ordinary new navigation.
func navStatus(mode NavMode) int {
	if mode == NavReplace {
		return http.StatusFound
	}
	return http.StatusSeeOther
}

// navBody is what JSON clients get instead of a Location redirect.
func navBody(path string, mode NavMode) (int, gin.H) {
	if mode == NavReplace {
		body := errorBody("UNAUTHORIZED", "login required")
		body["redirect"] = path
		return http.StatusUnauthorized, body
	}
	return http.StatusOK, gin.H{"redirect": path}
}

// pollSeconds is the status polling period announced to pages whose store
// cannot push changes. "0" disables polling.
func pollSeconds(interval time.Duration) string {
	if interval <= 0 {
		return "0"
	}
	if interval < time.Second {
		return "1"
	}
	return strconv.Itoa(int(interval / time.Second))
}
