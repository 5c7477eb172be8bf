package errorsx

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCode_DefaultsTo500WhenUncoded(t *testing.T) {
	t.Parallel()

	assert.Equal(t, http.StatusInternalServerError, Code(errors.New("boom")))
}

func TestCode_NilErrorIsOK(t *testing.T) {
	t.Parallel()

	assert.Equal(t, http.StatusOK, Code(nil))
}

func TestWithCode_ExtractsAttachedCode(t *testing.T) {
	t.Parallel()

	err := WithCode(errors.New("missing"), http.StatusNotFound)
	assert.Equal(t, http.StatusNotFound, Code(err))
	assert.Equal(t, "missing", err.Error())
}

func TestWithCode_NilErrorReturnsNil(t *testing.T) {
	t.Parallel()

	assert.NoError(t, WithCode(nil, http.StatusBadRequest))
}

func TestWithCode_SurvivesWrapping(t *testing.T) {
	t.Parallel()

	base := WithCode(errors.New("bad input"), http.StatusBadRequest)
	wrapped := errors.New("handler failed: " + base.Error())
	// wrapping with fmt.Errorf's %w is the realistic path; emulate via errors.Join
	joined := errors.Join(wrapped, base)
	assert.Equal(t, http.StatusBadRequest, Code(joined))
}

func TestNotFound_And_BadRequest(t *testing.T) {
	t.Parallel()

	assert.Equal(t, http.StatusNotFound, Code(NotFound(errors.New("x"))))
	assert.Equal(t, http.StatusBadRequest, Code(BadRequest(errors.New("x"))))
}
