package errors_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"

	svcErr "github.com/oggyb/survey-exchange/internal/errors"
)

func TestMap(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code codes.Code
		http int
	}{
		{"wrapped not found", fmt.Errorf("match m1: %w", svcErr.ErrNotFound), codes.NotFound, http.StatusNotFound},
		{"gorm not found", gorm.ErrRecordNotFound, codes.NotFound, http.StatusNotFound},
		{"unauthenticated", svcErr.ErrUnauthenticated, codes.Unauthenticated, http.StatusUnauthorized},
		{"not the owner", fmt.Errorf("survey s1 stats: %w", svcErr.ErrForbidden), codes.PermissionDenied, http.StatusForbidden},
		{"invalid", fmt.Errorf("self match: %w", svcErr.ErrInvalidArgument), codes.InvalidArgument, http.StatusBadRequest},
		{"conflict", svcErr.ErrConflict, codes.Aborted, http.StatusConflict},
		{"deadline", context.DeadlineExceeded, codes.DeadlineExceeded, http.StatusGatewayTimeout},
		{"other", fmt.Errorf("boom"), codes.Internal, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.code, status.Code(svcErr.Map(tc.err)))
			assert.Equal(t, tc.http, svcErr.HTTPStatus(tc.err))
		})
	}
}

func TestMap_PassesStatusErrorsThrough(t *testing.T) {
	err := svcErr.InvalidArgument("survey_id is required")
	assert.Equal(t, err, svcErr.Map(err))
	assert.Nil(t, svcErr.Map(nil))
}
