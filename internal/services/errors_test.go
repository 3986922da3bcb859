package services_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boletodesk/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrTransient, "upload", "collection", "failed", base)
	require.Error(t, err)
	assert.ErrorIs(t, err, services.ErrTransient)
	assert.ErrorIs(t, err, base)
	for _, fragment := range []string{"upload", "collection", "failed"} {
		assert.Contains(t, err.Error(), fragment)
	}
}

func TestWrapKeepsUnauthorizedMarker(t *testing.T) {
	inner := services.Wrap(services.ErrUnauthorized, "", "GET /operacoes/1", "", nil)
	err := services.Wrap(services.ErrTransient, "process", "process", "", inner)
	assert.ErrorIs(t, err, services.ErrUnauthorized)
	assert.Equal(t, "auth", services.Notice(err))
}

func TestWrapWithoutDetail(t *testing.T) {
	err := services.Wrap(nil, " ", "", "", nil)
	assert.ErrorIs(t, err, services.ErrTransient)
	assert.True(t, strings.HasSuffix(err.Error(), "service failure"))
}

func TestNoticeMapping(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{services.Wrap(services.ErrPartial, "upload", "fiscal", "", nil), "partial"},
		{services.Wrap(services.ErrStageLocked, "navigate", "", "", nil), "rejected"},
		{services.Wrap(services.ErrTerminated, "save", "", "", nil), "rejected"},
		{errors.New("io"), "transient"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, services.Notice(tc.err))
	}
}
