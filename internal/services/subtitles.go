package services

import (
	"fmt"
	"os"
	"strings"
)

// ---------------------------------------------------------------------------
// Word-highlight ASS captions for the local captioner.
// Words appear in small groups; the word being spoken gets a colored box.
// ---------------------------------------------------------------------------

// ASS colors are &HAABBGGRR.
const (
	assWhite     = "&H00FFFFFF"
	assBlack     = "&H00000000"
	assShadow    = "&H80000000"
	assHighlight = "&H0000D7FF" // #FFD700 gold
)

// CaptionStyle controls the look of generated captions. Sizes are in
// PlayRes pixels, so they scale with the canvas.
type CaptionStyle struct {
	CanvasWidth      int
	CanvasHeight     int
	FontName         string
	FontSize         int
	Outline          int
	HighlightOutline int
	MarginV          int
	WordsPerChunk    int
}

// DefaultCaptionStyle targets the 720x1280 portrait avatar render.
func DefaultCaptionStyle() CaptionStyle {
	return CaptionStyle{
		CanvasWidth:      720,
		CanvasHeight:     1280,
		FontName:         "Noto Sans",
		FontSize:         54,
		Outline:          3,
		HighlightOutline: 8,
		MarginV:          260,
		WordsPerChunk:    3,
	}
}

// BuildASS renders word timestamps into an ASS document.
func (st CaptionStyle) BuildASS(words []WordTimestamp) (string, error) {
	if len(words) == 0 {
		return "", fmt.Errorf("no words to generate captions from")
	}
	chunkSize := st.WordsPerChunk
	if chunkSize <= 0 {
		chunkSize = 3
	}

	var sb strings.Builder
	sb.WriteString("[Script Info]\n")
	sb.WriteString("ScriptType: v4.00+\n")
	fmt.Fprintf(&sb, "PlayResX: %d\n", st.CanvasWidth)
	fmt.Fprintf(&sb, "PlayResY: %d\n", st.CanvasHeight)
	sb.WriteString("WrapStyle: 0\n")
	sb.WriteString("ScaledBorderAndShadow: yes\n\n")

	sb.WriteString("[V4+ Styles]\n")
	sb.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n")
	fmt.Fprintf(&sb, "Style: Default,%s,%d,%s,%s,%s,%s,-1,0,0,0,100,100,1,0,1,%d,0,2,30,30,%d,1\n\n",
		st.FontName, st.FontSize, assWhite, assWhite, assBlack, assShadow, st.Outline, st.MarginV)

	sb.WriteString("[Events]\n")
	sb.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")

	for _, chunk := range chunkWords(words, chunkSize) {
		for i, w := range chunk {
			end := w.End
			if i < len(chunk)-1 {
				// hold until the next word starts so the group never flickers
				end = chunk[i+1].Start
			}
			fmt.Fprintf(&sb, "Dialogue: 0,%s,%s,Default,,0,0,0,,%s\n",
				formatASSTime(w.Start), formatASSTime(end), st.highlightedText(chunk, i))
		}
	}

	return sb.String(), nil
}

// WriteASS builds the document and writes it to path.
func (st CaptionStyle) WriteASS(words []WordTimestamp, path string) error {
	doc, err := st.BuildASS(words)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(doc), 0644); err != nil {
		return fmt.Errorf("failed to write ASS caption file: %w", err)
	}
	return nil
}

// chunkWords groups words for display, breaking early at sentence ends.
func chunkWords(words []WordTimestamp, chunkSize int) [][]WordTimestamp {
	var chunks [][]WordTimestamp
	var current []WordTimestamp

	for _, word := range words {
		current = append(current, word)
		sentenceEnd := strings.ContainsAny(word.Word, ".!?")
		if len(current) >= chunkSize || (sentenceEnd && len(current) >= 2) {
			chunks = append(chunks, current)
			current = nil
		}
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

// highlightedText renders a chunk with the word at active boxed in the highlight color,
// e.g. `MEET {\3c&H0000D7FF&\bord8}THE{\r} SERUM`.
func (st CaptionStyle) highlightedText(chunk []WordTimestamp, active int) string {
	parts := make([]string, 0, len(chunk))
	for i, w := range chunk {
		word := strings.ToUpper(strings.TrimSpace(w.Word))
		if word == "" {
			continue
		}
		if i == active {
			word = fmt.Sprintf("{\\3c%s&\\bord%d}%s{\\r}", assHighlight, st.HighlightOutline, word)
		}
		parts = append(parts, word)
	}
	return strings.Join(parts, " ")
}

// formatASSTime converts seconds to H:MM:SS.CC.
func formatASSTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	cs := int(seconds*100 + 0.5)
	return fmt.Sprintf("%d:%02d:%02d.%02d", cs/360000, (cs/6000)%60, (cs/100)%60, cs%100)
}
