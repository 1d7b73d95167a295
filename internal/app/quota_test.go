package app

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/Guilhem-Bonnet/prediction-runner/internal/domain"
)

func intp(n int) *int { return &n }

func TestQuotaGate_Check(t *testing.T) {
	cases := []struct {
		name     string
		quota    domain.Quota
		units    int
		wantCode ErrorCode
	}{
		{"available", domain.Quota{RequestsUsed: intp(2), RequestsLimit: intp(5), RequestsRemaining: intp(3)}, 1, CodeNone},
		{"council fits exactly", domain.Quota{RequestsRemaining: intp(3)}, 3, CodeNone},
		{"counters absent", domain.Quota{Status: "healthy"}, 3, CodeNone},
		{"exhausted", domain.Quota{RequestsUsed: intp(5), RequestsLimit: intp(5), RequestsRemaining: intp(0)}, 1, CodeRateLimitExceeded},
		{"council needs more units", domain.Quota{RequestsRemaining: intp(2)}, 3, CodeRateLimitExceeded},
		{"zero units counts as one", domain.Quota{RequestsRemaining: intp(0)}, 0, CodeRateLimitExceeded},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			gate := NewQuotaGate(&scriptedService{quota: c.quota})
			q, err := gate.Check(context.Background(), c.units)
			if !reflect.DeepEqual(q, c.quota) {
				t.Fatalf("quota: want %+v, got %+v", c.quota, q)
			}
			if c.wantCode == CodeNone {
				if err != nil {
					t.Fatalf("unexpected error %v", err)
				}
				return
			}
			var ce *ClassifiedError
			if !errors.As(err, &ce) || ce.Code != c.wantCode {
				t.Fatalf("expected code %q, got %v", c.wantCode, err)
			}
			if !errors.Is(err, ErrQuotaExhausted) {
				t.Fatalf("expected ErrQuotaExhausted in chain")
			}
		})
	}
}

func TestQuotaGate_ServiceErrorIsClassified(t *testing.T) {
	svc := &scriptedService{quotaErr: ClassifyHTTP(404, []byte(`{"detail":"Not Found"}`))}
	_, err := NewQuotaGate(svc).Check(context.Background(), 1)
	var ce *ClassifiedError
	if !errors.As(err, &ce) || ce.TransportStatus != 404 {
		t.Fatalf("expected classified 404, got %v", err)
	}
	if errors.Is(err, ErrQuotaExhausted) {
		t.Fatalf("a failing quota endpoint is not an exhausted quota")
	}
}
