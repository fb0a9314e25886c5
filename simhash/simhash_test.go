package simhash

import (
	"testing"
)

func TestFingerprint_IdenticalTitles(t *testing.T) {
	title := "sony wh-1000xm5 wireless noise cancelling headphones"
	fp1 := Fingerprint(title)
	fp2 := Fingerprint(title)

	if fp1 != fp2 {
		t.Errorf("identical titles produced different fingerprints: %064b vs %064b", fp1, fp2)
	}
}

func TestFingerprint_TokenOrderInsensitive(t *testing.T) {
	// Retailers order title tokens differently; the fingerprint is a
	// bag-of-words sum, so the same tokens must collapse to the same hash.
	fp1 := Fingerprint("sony wireless headphones")
	fp2 := Fingerprint("headphones sony wireless")

	if fp1 != fp2 {
		t.Errorf("reordered tokens changed the fingerprint: %064b vs %064b", fp1, fp2)
	}
}

func TestFingerprint_WhitespaceInsensitive(t *testing.T) {
	fp1 := Fingerprint("sony  wh-1000xm5   wireless headphones")
	fp2 := Fingerprint("sony wh-1000xm5 wireless headphones")

	if fp1 != fp2 {
		t.Errorf("extra whitespace changed the fingerprint: %064b vs %064b", fp1, fp2)
	}
}

func TestFingerprint_NearDuplicateTitles(t *testing.T) {
	// One retailer pads the title with an extra marketing word.
	fp1 := Fingerprint("logitech mx master 3s wireless mouse graphite")
	fp2 := Fingerprint("logitech mx master 3s wireless performance mouse graphite")

	dist := Distance(fp1, fp2)
	if dist > 10 {
		t.Errorf("near-duplicate titles have too large distance: %d (fingerprints: %064b, %064b)", dist, fp1, fp2)
	}
}

func TestFingerprint_DifferentProducts(t *testing.T) {
	fp1 := Fingerprint("sony wh-1000xm5 wireless headphones")
	fp2 := Fingerprint("instant pot duo 7-in-1 electric pressure cooker")

	dist := Distance(fp1, fp2)
	if dist < 5 {
		t.Errorf("unrelated products have too small distance: %d", dist)
	}
}

func TestFingerprint_EmptyInput(t *testing.T) {
	fp := Fingerprint("")
	if fp != 0 {
		t.Errorf("empty input should produce fingerprint 0, got: %064b", fp)
	}
}

func TestFingerprint_SingleWord(t *testing.T) {
	fp := Fingerprint("headphones")
	if fp == 0 {
		t.Error("single word should produce a non-zero fingerprint")
	}

	// Same single word should be deterministic.
	fp2 := Fingerprint("headphones")
	if fp != fp2 {
		t.Errorf("same single word produced different fingerprints: %d vs %d", fp, fp2)
	}
}

func TestFingerprint_WhitespaceOnly(t *testing.T) {
	fp := Fingerprint("   \t\n  ")
	if fp != 0 {
		t.Errorf("whitespace-only input should produce fingerprint 0, got: %064b", fp)
	}
}

func TestDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b uint64
		want int
	}{
		{"equal", 0xABCD, 0xABCD, 0},
		{"complement", 0, ^uint64(0), 64},
		{"high bit", 1 << 63, 0, 1},
		{"nibble swap", 0xF0, 0x0F, 8},
		{"both zero", 0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Distance(tt.a, tt.b)
			if got != tt.want {
				t.Errorf("Distance(%d, %d) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestSimilar_SameProductThreshold(t *testing.T) {
	// Title matching treats fingerprints within 3 bits as the same product.
	const threshold = 3

	a := Fingerprint("anker powercore 20000mah portable charger")
	b := Fingerprint("portable charger anker powercore 20000mah")
	if !Similar(a, b, threshold) {
		t.Errorf("same product with reordered tokens not similar at threshold %d (distance %d)", threshold, Distance(a, b))
	}

	c := Fingerprint("keurig k-mini single serve coffee maker")
	if Similar(a, c, threshold) {
		t.Errorf("unrelated products similar at threshold %d (distance %d)", threshold, Distance(a, c))
	}
}

func TestSimilar_ThresholdBoundary(t *testing.T) {
	fp1 := Fingerprint("sony wh-1000xm5 wireless headphones")
	if !Similar(fp1, fp1, 0) {
		t.Error("identical fingerprints should be similar at threshold 0")
	}

	fp2 := Fingerprint("instant pot duo 7-in-1 electric pressure cooker")
	dist := Distance(fp1, fp2)

	if Similar(fp1, fp2, dist-1) {
		t.Errorf("different products should not be similar at threshold %d (distance is %d)", dist-1, dist)
	}
	if !Similar(fp1, fp2, dist) {
		t.Errorf("should be similar at threshold equal to distance (%d)", dist)
	}
}
