package response

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

func TestErrorMapsEngineTaxonomy(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Error(c, fmt.Errorf("generate: %w", appErrors.Clone(appErrors.ErrFacultyOverloaded, "all maths faculty are full")))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var body map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "FACULTY_OVERLOADED", body["error"]["code"])
	assert.True(t, c.IsAborted())
}

func TestAcceptedSetsLocation(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	Accepted(c, map[string]string{"id": "run-1"}, "/api/v1/timetables/runs/run-1")

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "/api/v1/timetables/runs/run-1", w.Header().Get("Location"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}
