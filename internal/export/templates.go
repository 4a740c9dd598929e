package export

import (
	"bytes"
	"embed"
	"html/template"
	"strings"

	"screenplay/api/internal/screenplay"
)

//go:embed templates/*.html
var templateFS embed.FS

var screenplayTemplate = template.Must(template.ParseFS(templateFS, "templates/screenplay.html"))

// TemplateData holds data for screenplay template rendering
type TemplateData struct {
	Title  string
	Author string
	Scenes []TemplateScene
}

type TemplateScene struct {
	Number   int
	Elements []TemplateElement
}

// TemplateElement carries the CSS class that positions the element on the page.
type TemplateElement struct {
	Class   string
	Content string
}

func templateData(doc Screenplay) TemplateData {
	data := TemplateData{
		Title:  displayTitle(doc.Title),
		Author: doc.Author,
		Scenes: make([]TemplateScene, 0, len(doc.Scenes)),
	}
	for i, scene := range doc.Scenes {
		ts := TemplateScene{Number: screenplay.SceneNumber(i)}
		for _, el := range scene.Elements {
			content := el.Content
			if uppercased(el.Type) {
				content = strings.ToUpper(content)
			}
			ts.Elements = append(ts.Elements, TemplateElement{Class: string(el.Type), Content: content})
		}
		data.Scenes = append(data.Scenes, ts)
	}
	return data
}

// RenderHTML renders the print layout of the screenplay.
func RenderHTML(doc Screenplay) (string, error) {
	var buf bytes.Buffer
	if err := screenplayTemplate.Execute(&buf, templateData(doc)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func displayTitle(title string) string {
	if strings.TrimSpace(title) == "" {
		return screenplay.DefaultTitle
	}
	return title
}

func uppercased(t screenplay.ElementType) bool {
	switch t {
	case screenplay.ElementSceneHeading, screenplay.ElementCharacter, screenplay.ElementTransition:
		return true
	default:
		return false
	}
}
