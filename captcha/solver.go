package captcha

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"regexp"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/vcaesar/imgo"
)

// Solver answers one image-drop round. It is safe for concurrent use.
type Solver struct {
	Recognizer *Recognizer
	Reader     QuestionReader
	// DumpDir keeps every tile as <hash>.png and every question as <text>.png for labelling.
	DumpDir string
	Log     zerolog.Logger

	answered      atomic.Int64
	lowConfidence atomic.Int64
}

type Stats struct {
	Answered      int64 `json:"answered"`
	LowConfidence int64 `json:"low_confidence"`
}

func NewSolver(recognizer *Recognizer, reader QuestionReader, dumpDir string, log zerolog.Logger) *Solver {
	return &Solver{
		Recognizer: recognizer,
		Reader:     reader,
		DumpDir:    dumpDir,
		Log:        log.With().Str("component", "captcha").Logger(),
	}
}

// Answer recognizes the icons, reads the question and picks a tile.
// An unreadable question degrades to the low-confidence fallback.
func (s *Solver) Answer(question, icons []byte) (Answer, error) {
	strip, err := DecodeImage(icons)
	if err != nil {
		return Answer{}, fmt.Errorf("drag icons - %w", err)
	}
	tiles, err := SplitTiles(strip)
	if err != nil {
		return Answer{}, err
	}
	candidates := s.Recognizer.RecognizeTiles(tiles)

	var instruction string
	raw, err := s.Reader.Read(question)
	if err != nil {
		s.Log.Warn().Err(err).Msg("failed to read question")
	} else {
		instruction = NormalizeInstruction(raw)
	}

	answer := Select(candidates, instruction)
	s.answered.Add(1)

	for _, c := range candidates {
		if !c.Known() {
			s.Log.Debug().Int("tile", c.TileIndex).Str("hash", c.Hash).Msg("unknown icon")
		}
	}
	if answer.LowConfidence {
		s.lowConfidence.Add(1)
		s.Log.Warn().Str("instruction", instruction).Msg("no icon matched, falling back to tile 0")
	}

	if s.DumpDir != "" {
		s.dump(tiles, candidates, question, instruction)
	}
	return answer, nil
}

func (s *Solver) Stats() Stats {
	return Stats{
		Answered:      s.answered.Load(),
		LowConfidence: s.lowConfidence.Load(),
	}
}

var unsafeName = regexp.MustCompile(`[^a-z0-9]+`)

func (s *Solver) dump(tiles [TileCount]*image.RGBA, candidates [TileCount]IconCandidate, question []byte, instruction string) {
	iconDir := filepath.Join(s.DumpDir, "icons")
	questionDir := filepath.Join(s.DumpDir, "questions")
	for _, dir := range []string{iconDir, questionDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			s.Log.Warn().Err(err).Msg("failed to create dump dir")
			return
		}
	}

	for i, tile := range tiles {
		if err := imgo.Save(filepath.Join(iconDir, candidates[i].Hash+".png"), tile); err != nil {
			s.Log.Warn().Err(err).Msg("failed to save icon")
		}
	}

	img, err := DecodeImage(question)
	if err != nil {
		return
	}
	name := unsafeName.ReplaceAllString(instruction, "_")
	if name == "" || name == "_" {
		name = fmt.Sprintf("unreadable_%d", time.Now().UnixNano())
	}
	if len(name) > 64 {
		name = name[:64]
	}
	if err := imgo.Save(filepath.Join(questionDir, name+".png"), img); err != nil {
		s.Log.Warn().Err(err).Msg("failed to save question")
	}
}
