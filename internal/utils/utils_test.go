// internal/utils/utils_test.go
package utils

import (
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/contract-engine/internal/models"
)

func TestGenerateNumericCode(t *testing.T) {
	digits := regexp.MustCompile(`^\d+$`)
	for _, length := range []int{4, 6, 10} {
		code, err := GenerateNumericCode(length)
		require.NoError(t, err)
		assert.Len(t, code, length)
		assert.Regexp(t, digits, code)
	}

	_, err := GenerateNumericCode(0)
	assert.Error(t, err)
}

func TestHashString(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", HashString(""))
	assert.NotEqual(t, HashString("a"), HashString("b"))
}

type signRequest struct {
	Role models.PartyRole `json:"role" validate:"required,party_role"`
	Code string           `json:"code" validate:"required,numeric,min=4,max=10"`
}

func TestValidateStruct(t *testing.T) {
	assert.NoError(t, ValidateStruct(&signRequest{Role: models.PartyRoleBuyer, Code: "123456"}))

	errs := GetValidationErrors(ValidateStruct(&signRequest{Role: "buyer", Code: "12a"}))
	require.Len(t, errs, 2)
	byField := map[string]ValidationError{}
	for _, e := range errs {
		byField[e.Field] = e
	}
	assert.Equal(t, "party_role", byField["role"].Tag)
	assert.Equal(t, "role must be BUYER or SELLER", byField["role"].Message)
	assert.Equal(t, "numeric", byField["code"].Tag)

	assert.Empty(t, GetValidationErrors(nil))
}

func TestJWTRoundTrip(t *testing.T) {
	SetJWTSecret("utils-test-secret")
	userID := uuid.New()

	token, err := GenerateJWT(userID, "staff", "staff", 1)
	require.NoError(t, err)

	claims, err := ValidateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.UserID)
	assert.Equal(t, "staff", claims.UserType)

	SetJWTSecret("rotated")
	_, err = ValidateJWT(token)
	assert.Error(t, err)
}

func TestGetPaginationParams(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		query string
		want  PaginationParams
	}{
		{"", PaginationParams{Page: 1, Limit: 20, Sort: "created_at", Order: "desc"}},
		{"?page=3&limit=50&sort=status&order=ASC", PaginationParams{Page: 3, Limit: 50, Sort: "status", Order: "asc"}},
		{"?page=-1&limit=1000&order=sideways", PaginationParams{Page: 1, Limit: 20, Sort: "created_at", Order: "desc"}},
	}

	for _, tt := range tests {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest("GET", "/contracts"+tt.query, nil)
		assert.Equal(t, tt.want, GetPaginationParams(c), tt.query)
	}
}

func TestCreatePaginationResult(t *testing.T) {
	result := CreatePaginationResult([]int{1, 2}, 41, PaginationParams{Page: 2, Limit: 20})
	assert.Equal(t, 3, result.TotalPages)
	assert.Equal(t, int64(41), result.Total)

	assert.Zero(t, CreatePaginationResult(nil, 10, PaginationParams{}).TotalPages)
}
