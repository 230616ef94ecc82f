package logging

import "testing"

func TestNewProgressSampler(t *testing.T) {
	tests := []struct {
		name       string
		bucketSize float64
		wantSize   float64
	}{
		{"default bucket size for zero", 0, 10},
		{"default bucket size for negative", -1, 10},
		{"custom bucket size", 25, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewProgressSampler(tt.bucketSize)
			if s.bucketSize != tt.wantSize {
				t.Errorf("bucketSize = %v, want %v", s.bucketSize, tt.wantSize)
			}
			if len(s.buckets) != 0 {
				t.Errorf("buckets = %v, want empty", s.buckets)
			}
		})
	}
}

func TestProgressSampler_NilSampler(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog("a.jpg", 50) {
		t.Error("ShouldLog on nil sampler should always return true")
	}
	s.Forget("a.jpg")
	s.Reset()
}

func TestProgressSampler_ShouldLogPercentBuckets(t *testing.T) {
	s := NewProgressSampler(10)

	if !s.ShouldLog("a.jpg", 0) {
		t.Error("first event should log")
	}
	if s.ShouldLog("a.jpg", 5) {
		t.Error("5% should not log (same bucket)")
	}
	if !s.ShouldLog("a.jpg", 10) {
		t.Error("10% should log (new bucket)")
	}
	if s.ShouldLog("a.jpg", 19.9) {
		t.Error("19.9% should not log (same bucket)")
	}
	if !s.ShouldLog("a.jpg", 100) {
		t.Error("100% should log")
	}
	if s.ShouldLog("a.jpg", 120) {
		t.Error("values over 100% should share the 100% bucket")
	}
}

func TestProgressSampler_KeysAreIndependent(t *testing.T) {
	s := NewProgressSampler(10)

	s.ShouldLog("a.jpg", 50)
	if !s.ShouldLog("b.jpg", 0) {
		t.Error("first event for a new key should log")
	}
	if s.ShouldLog("a.jpg", 55) {
		t.Error("a.jpg bucket must not be affected by b.jpg")
	}
}

func TestProgressSampler_UnknownPercentLogsOnce(t *testing.T) {
	s := NewProgressSampler(10)

	if !s.ShouldLog("a.jpg", -1) {
		t.Error("first event should log even with unknown percent")
	}
	if s.ShouldLog("a.jpg", -1) {
		t.Error("unknown percent should not log again")
	}
	if !s.ShouldLog("a.jpg", 0) {
		t.Error("first known percent should log")
	}
}

func TestProgressSampler_ForgetAndReset(t *testing.T) {
	s := NewProgressSampler(10)
	s.ShouldLog("a.jpg", 50)

	s.Forget("a.jpg")
	if !s.ShouldLog("a.jpg", 50) {
		t.Error("should log after forget")
	}

	s.Reset()
	if len(s.buckets) != 0 {
		t.Errorf("buckets = %v, want empty after reset", s.buckets)
	}
	if !s.ShouldLog("a.jpg", 50) {
		t.Error("should log after reset")
	}
}
