package exfiltration

import "testing"

func TestStreamScannerAllowsBenignChunks(t *testing.T) {
	s := NewStreamScanner(NewMonitor(), 16)
	res := s.Feed("The weather today is ")
	if res.Recommendation != RecommendAllow {
		t.Fatalf("expected allow, got %v", res.Recommendation)
	}
	res = s.Feed("sunny and warm.")
	if res.Recommendation != RecommendAllow {
		t.Fatalf("expected allow, got %v", res.Recommendation)
	}
}

func TestStreamScannerCatchesSecretWithinASingleChunk(t *testing.T) {
	s := NewStreamScanner(NewMonitor(), 16)
	res := s.Feed("Here is the key: sk-abc123xyz456def789 keep it safe")
	if res.Recommendation == RecommendAllow {
		t.Fatalf("expected scanner to flag an embedded secret, got %v", res.Recommendation)
	}
}

func TestStreamScannerCatchesSecretSplitAcrossChunkBoundary(t *testing.T) {
	s := NewStreamScanner(NewMonitor(), 16)
	secret := "sk-abc123xyz456def789"
	mid := len(secret) / 2

	first := s.Feed("here is a key: " + secret[:mid])
	if first.Recommendation != RecommendAllow {
		t.Fatalf("first half alone should not trigger a match, got %v", first.Recommendation)
	}

	second := s.Feed(secret[mid:] + " please use it")
	if second.Recommendation == RecommendAllow {
		t.Fatalf("expected the overlap buffer to let the split secret be caught, got %v", second.Recommendation)
	}
}

func TestStreamScannerFinalizeWithNoPendingData(t *testing.T) {
	s := NewStreamScanner(NewMonitor(), 16)
	res := s.Finalize()
	if res.Recommendation != RecommendAllow {
		t.Fatalf("expected allow when nothing was fed, got %v", res.Recommendation)
	}
}

func TestStreamScannerFinalizeScansRemainingOverlap(t *testing.T) {
	s := NewStreamScanner(NewMonitor(), 64)
	s.Feed("the key is sk-abc123xyz456def789")
	res := s.Finalize()
	if res.Recommendation == RecommendAllow {
		t.Fatalf("expected finalize to still catch the secret retained in the overlap buffer, got %v", res.Recommendation)
	}
}

func TestNewStreamScannerDefaultsOverlapSize(t *testing.T) {
	s := NewStreamScanner(NewMonitor(), 0)
	if s.overlapSize != 64 {
		t.Fatalf("expected default overlap size of 64, got %d", s.overlapSize)
	}
}
