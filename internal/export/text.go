package export

import (
	"fmt"
	"strings"

	"screenplay/api/internal/screenplay"
)

// Column layout of a plain-text screenplay page, in characters.
const (
	pageWidth           = 60
	characterIndent     = 22
	parentheticalIndent = 16
	parentheticalWidth  = 25
	dialogueIndent      = 10
	dialogueWidth       = 35
)

// RenderText lays the screenplay out as monospaced text.
func RenderText(doc Screenplay) string {
	var b strings.Builder
	b.WriteString(center(strings.ToUpper(displayTitle(doc.Title))))
	b.WriteByte('\n')
	if doc.Author != "" {
		b.WriteByte('\n')
		b.WriteString(center("Written by"))
		b.WriteByte('\n')
		b.WriteString(center(doc.Author))
		b.WriteByte('\n')
	}

	for i, scene := range doc.Scenes {
		number := screenplay.SceneNumber(i)
		for _, el := range scene.Elements {
			b.WriteByte('\n')
			writeElement(&b, number, el)
		}
	}
	return b.String()
}

func writeElement(b *strings.Builder, sceneNumber int, el screenplay.Element) {
	switch el.Type {
	case screenplay.ElementSceneHeading:
		fmt.Fprintf(b, "%d. %s\n", sceneNumber, strings.ToUpper(el.Content))
	case screenplay.ElementCharacter:
		writeBlock(b, strings.ToUpper(el.Content), characterIndent, pageWidth-characterIndent)
	case screenplay.ElementParenthetical:
		writeBlock(b, el.Content, parentheticalIndent, parentheticalWidth)
	case screenplay.ElementDialogue:
		writeBlock(b, el.Content, dialogueIndent, dialogueWidth)
	case screenplay.ElementTransition:
		line := strings.ToUpper(el.Content)
		if pad := pageWidth - len(line); pad > 0 {
			line = strings.Repeat(" ", pad) + line
		}
		b.WriteString(line)
		b.WriteByte('\n')
	default:
		writeBlock(b, el.Content, 0, pageWidth)
	}
}

func writeBlock(b *strings.Builder, text string, indent, width int) {
	prefix := strings.Repeat(" ", indent)
	for _, line := range wrap(text, width) {
		b.WriteString(prefix)
		b.WriteString(line)
		b.WriteByte('\n')
	}
}

// wrap breaks text on spaces so no line exceeds width, unless a single word
// is longer than width. Existing line breaks are kept.
func wrap(text string, width int) []string {
	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		words := strings.Fields(paragraph)
		if len(words) == 0 {
			lines = append(lines, "")
			continue
		}
		line := words[0]
		for _, word := range words[1:] {
			if len(line)+1+len(word) > width {
				lines = append(lines, line)
				line = word
				continue
			}
			line += " " + word
		}
		lines = append(lines, line)
	}
	return lines
}

func center(s string) string {
	if pad := (pageWidth - len(s)) / 2; pad > 0 {
		return strings.Repeat(" ", pad) + s
	}
	return s
}
