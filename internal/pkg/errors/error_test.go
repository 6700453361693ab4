package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCarriesCodeAndMessage(t *testing.T) {
	err := New(ErrQuotaStorage, "used 201 GiB of 200 GiB")
	assert.Equal(t, ErrQuotaStorage, err.Code)
	assert.Equal(t, "Storage quota exceeded", err.Message)
	assert.Contains(t, err.Error(), "201 GiB")
	assert.Equal(t, http.StatusForbidden, err.HTTPStatus())
}

func TestWrapPreservesExistingAppError(t *testing.T) {
	inner := New(ErrLinkNotFound)
	wrapped := Wrap(fmt.Errorf("lookup: %w", inner), ErrInternalServer)
	assert.Equal(t, ErrLinkNotFound, wrapped.Code)

	assert.Nil(t, Wrap(nil, ErrInternalServer))

	plain := Wrap(stderrors.New("dial tcp: refused"), ErrStorageUnavailable)
	assert.Equal(t, ErrStorageUnavailable, plain.Code)
	assert.ErrorContains(t, plain, "dial tcp")
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, Success, CodeOf(nil))
	assert.Equal(t, ErrUserBlocked, CodeOf(New(ErrUserBlocked)))
	assert.Equal(t, ErrUserBlocked, CodeOf(fmt.Errorf("guard: %w", New(ErrUserBlocked))))
	assert.Equal(t, ErrInternalServer, CodeOf(stderrors.New("plain")))

	assert.True(t, Is(New(ErrReferralSelf), ErrReferralSelf))
	assert.False(t, Is(New(ErrReferralSelf), ErrReferralUnknownCode))
}

func TestUnknownCodeFallsBackToInternal(t *testing.T) {
	c := GetCode(999999)
	assert.Equal(t, ErrInternalServer, c.Code)
	assert.Equal(t, http.StatusInternalServerError, GetHTTPStatus(999999))
}
