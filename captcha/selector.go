package captcha

import "strings"

// Answer is the tile to drop. LowConfidence marks the index 0 fallback taken
// when no label matched the instruction.
type Answer struct {
	Index         int                      `json:"index"`
	Label         string                   `json:"label,omitempty"`
	LowConfidence bool                     `json:"low_confidence"`
	Instruction   string                   `json:"instruction"`
	Candidates    [TileCount]IconCandidate `json:"candidates"`
}

// Select returns the first tile, in tile order, whose label occurs in the instruction.
func Select(candidates [TileCount]IconCandidate, instruction string) Answer {
	text := strings.ToLower(instruction)

	for _, c := range candidates {
		if c.Known() && strings.Contains(text, c.Label) {
			return Answer{
				Index:       c.TileIndex,
				Label:       c.Label,
				Instruction: instruction,
				Candidates:  candidates,
			}
		}
	}

	return Answer{
		Index:         0,
		LowConfidence: true,
		Instruction:   instruction,
		Candidates:    candidates,
	}
}
