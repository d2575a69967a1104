package domain

import (
	"errors"
	"testing"

	apperrors "dashext/internal/platform/errors"
)

func TestPlanValidate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		plan Plan
		want error
	}{
		{name: "valid", plan: Plan{Source: "/in/widgets.tar", Root: "/ext", Name: "widgets", Target: "/ext/widgets"}},
		{name: "relative source", plan: Plan{Source: "widgets.tar", Root: "/ext", Name: "widgets", Target: "/ext/widgets"}, want: apperrors.ErrInvalidInput},
		{name: "target elsewhere", plan: Plan{Source: "/in/widgets.tar", Root: "/ext", Name: "widgets", Target: "/other/widgets"}, want: apperrors.ErrTraversalRejected},
		{name: "empty name", plan: Plan{Source: "/in/widgets.tar", Root: "/ext", Target: "/ext"}, want: apperrors.ErrTraversalRejected},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.plan.Validate()
			if tc.want == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestLimitsValidate(t *testing.T) {
	t.Parallel()
	if err := (Limits{MaxEntries: 1, MaxBytes: 1, MaxFileBytes: 1}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := (Limits{MaxEntries: 1, MaxBytes: 0, MaxFileBytes: 1}).Validate(); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
