package apierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcoot/marketid/internal/model"
	"github.com/mcoot/marketid/internal/services/authn"
)

func TestWriteErrorMapsSentinels(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{model.ErrInvalidCredentials, http.StatusUnauthorized, CodeInvalidCredentials},
		{fmt.Errorf("sign up: %w", model.ErrEmailExists), http.StatusConflict, CodeEmailExists},
		{authn.ErrPasswordTooShort, http.StatusBadRequest, CodePasswordTooShort},
		{authn.ErrInvalidEmail, http.StatusBadRequest, CodeInvalidEmail},
		{model.ErrInvalidRole, http.StatusBadRequest, CodeInvalidRole},
		{model.ErrInvalidSignal, http.StatusBadRequest, CodeInvalidSignal},
		{model.ErrProfileNotFound, http.StatusNotFound, CodeProfileNotFound},
		{model.ErrClientNotFound, http.StatusUnauthorized, CodeClientNotFound},
		{NewForbiddenError(), http.StatusForbidden, CodeForbidden},
		{NewSessionLoadingError(), http.StatusServiceUnavailable, CodeSessionLoading},
		{errors.New("boom"), http.StatusInternalServerError, CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rr := httptest.NewRecorder()
			WriteError(rr, tt.err)

			assert.Equal(t, tt.status, rr.Code)
			assert.Equal(t, tt.status, StatusOf(tt.err))
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}
