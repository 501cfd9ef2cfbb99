package clienterr

import (
	"context"
	"fmt"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestPredicates(t *testing.T) {
	cases := []struct {
		err  error
		pred func(error) bool
		kind Kind
	}{
		{Connection(CodeClosed, nil), IsConnection, KindConnection},
		{Signing(CodeExpired, "expired at %d", 1), IsSigning, KindSigning},
		{Precondition("delete_clone_cell", CodeIllegalState, "clone is Enabled"), IsPrecondition, KindPrecondition},
		{Remote("zome_call", "ribosome_error", "boom"), IsRemote, KindRemote},
		{Timeout("app_info", context.DeadlineExceeded), IsTimeout, KindTimeout},
		{Canceled("app_info", context.Canceled), IsCanceled, KindCanceled},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			assert.True(t, tc.pred(tc.err))
			assert.True(t, tc.pred(errors.Wrap(tc.err, "outer")))
			assert.True(t, tc.pred(fmt.Errorf("outer: %w", tc.err)))
			assert.Equal(t, tc.kind, KindOf(tc.err))
		})
	}
	assert.False(t, IsRemote(errors.New("plain")))
	assert.False(t, IsTimeout(nil))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestRemote_CarriesConductorError(t *testing.T) {
	err := Remote("zome_call", "ribosome_error", "guest error: nope")
	assert.Equal(t, "ribosome_error", CodeOf(err))
	assert.Equal(t, "REMOTE: zome_call: guest error: nope (ribosome_error)", err.Error())
}

func TestError_UnwrapAndMessageFallback(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := Connection(CodeDialFailed, cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "CONNECTION: dial tcp: refused (dial_failed)", err.Error())
}

func TestWithOp(t *testing.T) {
	base := Connection(CodeConnectionLost, nil)
	withOp := base.WithOp("app_info")
	assert.Equal(t, "app_info", withOp.Op)
	assert.Empty(t, base.Op)
	assert.Equal(t, "app_info", withOp.WithOp("other").Op)
}
