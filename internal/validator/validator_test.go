package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/formcraft/formcraft-backend/internal/model"
)

func TestBind_SubmitResponseRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	Setup()

	bind := func(body string) map[string]string {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		c.Request.Header.Set("Content-Type", "application/json")
		var req model.SubmitResponseRequest
		return Bind(c, &req)
	}

	assert.Nil(t, bind(`{"formId":"7f9c24e8-3b12-4fef-91e3-2b8a7bd1e0a1","responses":[
		{"questionId":"q1","questionType":"Cloze","answer":[null]}]}`))

	fields := bind(`{"formId":"7f9c24e8-3b12-4fef-91e3-2b8a7bd1e0a1","responses":[
		{"questionId":"q1","questionType":"Essay","answer":"x"}]}`)
	assert.Equal(t, "questionType must be one of Categorize, Cloze or Comprehension", fields["questionType"])

	fields = bind(`{"responses":[]}`)
	assert.Contains(t, fields, "formId")

	fields = bind(`{not json`)
	assert.Contains(t, fields, "detail")
}
