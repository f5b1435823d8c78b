package backend

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"ghostd/pkg/types"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want types.FailureKind
	}{
		{nil, types.FailureNone},
		{context.DeadlineExceeded, types.FailureTimeout},
		{fmt.Errorf("wrapped: %w", context.Canceled), types.FailureCanceled},
		{&net.OpError{Op: "dial", Err: errors.New("refused")}, types.FailureNetwork},
		{&Error{Kind: types.FailureAuth}, types.FailureAuth},
		{fmt.Errorf("outer: %w", &Error{Kind: types.FailureRateLimited}), types.FailureRateLimited},
		{ErrAcceleratorLoad("gpu:0", errors.New("oom")), types.FailureAcceleratorLoad},
		{ErrNoBackend, types.FailureBackendUnavailable},
		{errors.New("garbage"), types.FailureBadResponse},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.want {
			t.Fatalf("Classify(%v)=%s want %s", tc.err, got, tc.want)
		}
	}
}

func TestErrorHelpers(t *testing.T) {
	rl := &Error{Kind: types.FailureRateLimited, Backend: "openai", RetryAfter: 3 * time.Second, Err: errors.New("slow down")}
	if !IsRateLimited(rl) || IsTransient(rl) || RetryAfter(rl) != 3*time.Second {
		t.Fatalf("rate-limit helpers wrong")
	}
	if rl.Error() != "openai: rate_limited: slow down" {
		t.Fatalf("message=%q", rl.Error())
	}
	if !IsTransient(&Error{Kind: types.FailureNetwork}) || !IsAuth(&Error{Kind: types.FailureAuth}) {
		t.Fatalf("kind helpers wrong")
	}
	if !IsAcceleratorLoad(ErrAcceleratorLoad("gpu:0", errors.New("x"))) {
		t.Fatalf("accelerator helper wrong")
	}
	if !IsBackendUnavailable(ErrUnavailable("cpu", "model missing")) || IsBackendUnavailable(rl) {
		t.Fatalf("unavailable helper wrong")
	}
}
