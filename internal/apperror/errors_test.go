package apperror

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("service: could not subscribe: %w", Validation("lat", "is required"))

	assert.Equal(t, KindValidation, KindOf(wrapped))
	assert.Equal(t, KindTransient, KindOf(context.DeadlineExceeded))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.True(t, IsKind(Authorization("admin"), KindAuthorization))
}

func TestToFailure_HidesInternalDetail(t *testing.T) {
	f := ToFailure(errors.New("pq: relation users does not exist"))

	assert.Equal(t, KindInternal, f.Code)
	assert.Equal(t, "internal error", f.Message)
	assert.NotContains(t, f.Message, "relation")
}

func TestToFailure_PreciseForClientErrors(t *testing.T) {
	v := ToFailure(Validation("radius", "must be greater than 0"))
	assert.Equal(t, "radius", v.Field)
	assert.Equal(t, "must be greater than 0", v.Message)

	a := ToFailure(Authorization("admin"))
	assert.Equal(t, "admin", a.RequiredRole)

	tr := ToFailure(Transient(errors.New("dial tcp: i/o timeout")))
	assert.True(t, tr.Retryable)
	assert.NotContains(t, tr.Message, "dial")

	assert.Nil(t, ToFailure(nil))
}
