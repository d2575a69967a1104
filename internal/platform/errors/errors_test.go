package apperrors_test

import (
	"errors"
	"fmt"
	"testing"

	apperrors "dashext/internal/platform/errors"
)

func TestKindOf(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		err  error
		want apperrors.Kind
	}{
		{name: "nil", err: nil, want: ""},
		{name: "wrapped traversal", err: fmt.Errorf("%w: entry ../x", apperrors.ErrTraversalRejected), want: apperrors.KindTraversalRejected},
		{name: "double wrapped busy", err: fmt.Errorf("extract: %w", fmt.Errorf("%w: widgets", apperrors.ErrBusy)), want: apperrors.KindBusy},
		{name: "plain", err: errors.New("boom"), want: apperrors.KindInternal},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := apperrors.KindOf(tc.err); got != tc.want {
				t.Fatalf("KindOf() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestFromKindRoundTrip(t *testing.T) {
	t.Parallel()
	original := fmt.Errorf("%w: archive is not gzip", apperrors.ErrInvalidArchive)
	rebuilt := apperrors.FromKind(apperrors.KindOf(original), original.Error())
	if !errors.Is(rebuilt, apperrors.ErrInvalidArchive) {
		t.Fatalf("expected rebuilt error to match sentinel, got %v", rebuilt)
	}
	if rebuilt.Error() != original.Error() {
		t.Fatalf("message changed across round trip: %q vs %q", rebuilt.Error(), original.Error())
	}
	if !errors.Is(apperrors.FromKind(apperrors.KindBusy, ""), apperrors.ErrBusy) {
		t.Fatalf("expected bare kind to map to sentinel")
	}
	if err := apperrors.FromKind("mystery", "x"); err == nil || err.Error() != "x" {
		t.Fatalf("unexpected unknown-kind error: %v", err)
	}
}
