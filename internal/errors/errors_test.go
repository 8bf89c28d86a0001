package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotFoundIsMatching(t *testing.T) {
	err := NotFound("get", "local", "abc123")
	assert.True(t, stderrors.Is(err, &MemError{Kind: KindNotFound}))
	assert.False(t, stderrors.Is(err, &MemError{Kind: KindConflict}))
}

func TestBusyIsRetryable(t *testing.T) {
	err := Busy("upsert", "local")
	assert.True(t, IsRetryable(err))
	assert.False(t, IsFatal(err))
}

func TestIntegrityIsFatalAndCarriesOffset(t *testing.T) {
	err := Integrity("verify", "local", 4096, "hash chain broken")
	assert.True(t, IsFatal(err))
	assert.Equal(t, "4096", err.Details["broken_at"])
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("disk full")
	err := IOErr("write_item", "local", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindIO, KindOf(err))
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(KindIO, "op", "scope", nil, ""))
}
