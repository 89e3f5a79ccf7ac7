package captcha

import "testing"

func candidatesOf(labels ...string) [TileCount]IconCandidate {
	var c [TileCount]IconCandidate
	for i := range c {
		c[i].TileIndex = i
		if i < len(labels) {
			c[i].Label = labels[i]
		}
	}
	return c
}

func TestSelect(t *testing.T) {
	cases := []struct {
		name        string
		candidates  [TileCount]IconCandidate
		instruction string
		wantIndex   int
		wantLabel   string
		wantLow     bool
	}{
		{
			name:        "first tile matches",
			candidates:  candidatesOf("apple", "sun", "star", "cloud"),
			instruction: "find the apple",
			wantIndex:   0,
			wantLabel:   "apple",
		},
		{
			name:        "later tile matches",
			candidates:  candidatesOf("sun", "star", "cloud", "apple"),
			instruction: "drag the apple into the circle",
			wantIndex:   3,
			wantLabel:   "apple",
		},
		{
			name:        "no label in text falls back",
			candidates:  candidatesOf("sun", "apple", "star", "cloud"),
			instruction: "find the umbrella",
			wantIndex:   0,
			wantLow:     true,
		},
		{
			name:        "all unknown falls back",
			candidates:  candidatesOf("", "", "", ""),
			instruction: "find the apple",
			wantIndex:   0,
			wantLow:     true,
		},
		{
			name:        "first of several matches wins",
			candidates:  candidatesOf("moon", "star", "sun", "cloud"),
			instruction: "drag the sun or the star",
			wantIndex:   1,
			wantLabel:   "star",
		},
		{
			name:        "unknown tiles are skipped",
			candidates:  candidatesOf("", "bell", "", "tree"),
			instruction: "which one is the tree",
			wantIndex:   3,
			wantLabel:   "tree",
		},
		{
			name:        "multi word label",
			candidates:  candidatesOf("hat", "ice cream", "mug", "book"),
			instruction: "pick the ice cream",
			wantIndex:   1,
			wantLabel:   "ice cream",
		},
		{
			name:        "empty instruction",
			candidates:  candidatesOf("apple", "sun", "star", "cloud"),
			instruction: "",
			wantIndex:   0,
			wantLow:     true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Select(tc.candidates, tc.instruction)
			if got.Index != tc.wantIndex || got.Label != tc.wantLabel || got.LowConfidence != tc.wantLow {
				t.Errorf("Select = {index %d, label %q, low %v}, want {index %d, label %q, low %v}",
					got.Index, got.Label, got.LowConfidence, tc.wantIndex, tc.wantLabel, tc.wantLow)
			}
			if got.Index < 0 || got.Index >= TileCount {
				t.Errorf("index %d out of range", got.Index)
			}
		})
	}
}
