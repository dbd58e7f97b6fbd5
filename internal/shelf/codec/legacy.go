package codec

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/mschirtzinger/inkshelf/internal/shelf/remote"
	"github.com/mschirtzinger/inkshelf/internal/shelf/schema"
)

// decodeLegacy reads "Label: value" paragraphs. Lines without a known label
// continue the previous value.
func decodeLegacy(kind schema.Kind, blocks []remote.Block) (schema.Record, bool) {
	rec, err := schema.New(kind)
	if err != nil {
		return nil, false
	}

	matched := false
	var (
		label string
		value strings.Builder
	)
	flush := func() {
		if label == "" {
			return
		}
		if applyLegacy(rec, label, strings.TrimSpace(value.String())) {
			matched = true
		}
		label = ""
		value.Reset()
	}

	for _, b := range blocks {
		if b.Type != remote.BlockParagraph {
			continue
		}
		for _, line := range strings.Split(b.Text, "\n") {
			if l, v, ok := splitLabel(line); ok && knownLabel(kind, l) {
				flush()
				label = l
				value.WriteString(v)
				continue
			}
			if label != "" {
				value.WriteString("\n")
				value.WriteString(line)
			}
		}
	}
	flush()

	if !matched {
		return nil, false
	}
	return rec, true
}

func splitLabel(line string) (string, string, bool) {
	label, value, ok := strings.Cut(line, ":")
	if !ok {
		return "", "", false
	}
	label = strings.ToLower(strings.TrimSpace(label))
	if label == "" || strings.ContainsAny(label, " \t") {
		return "", "", false
	}
	return label, strings.TrimSpace(value), true
}

var legacyLabels = map[schema.Kind][]string{
	schema.KindWork:        {"title", "description", "category"},
	schema.KindSynopsis:    {"ki", "sho", "ten", "ketsu"},
	schema.KindCharacter:   {"name", "role", "order", "notes"},
	schema.KindSetting:     {"name", "category", "order", "notes"},
	schema.KindChapter:     {"title", "order", "phase"},
	schema.KindEpisode:     {"episode", "title", "body"},
	schema.KindTagCategory: {"name", "order", "color"},
	schema.KindTag:         {"name", "order", "color"},
}

func knownLabel(kind schema.Kind, label string) bool {
	for _, l := range legacyLabels[kind] {
		if l == label {
			return true
		}
	}
	return false
}

// applyLegacy sets one field. It reports false when the value could not be
// used.
func applyLegacy(rec schema.Record, label, value string) bool {
	switch r := rec.(type) {
	case *schema.Work:
		switch label {
		case "title":
			r.Title = value
		case "description":
			r.Description = value
		case "category":
			r.Category = value
		}
	case *schema.Synopsis:
		points := legacyPlotPoints(value)
		switch schema.Phase(label) {
		case schema.PhaseKi:
			r.Ki = points
		case schema.PhaseSho:
			r.Sho = points
		case schema.PhaseTen:
			r.Ten = points
		case schema.PhaseKetsu:
			r.Ketsu = points
		}
	case *schema.Character:
		switch label {
		case "name":
			r.Name = value
		case "role":
			r.Role = value
		case "order":
			return setInt(&r.Order, value)
		case "notes":
			r.Notes = value
		}
	case *schema.Setting:
		switch label {
		case "name":
			r.Name = value
		case "category":
			r.Category = value
		case "order":
			return setInt(&r.Order, value)
		case "notes":
			r.Notes = value
		}
	case *schema.Chapter:
		switch label {
		case "title":
			r.Title = value
		case "order":
			return setInt(&r.Order, value)
		case "phase":
			p := schema.Phase(strings.ToLower(value))
			if !p.Valid() {
				return false
			}
			r.Phase = p
		}
	case *schema.Episode:
		switch label {
		case "episode":
			return setInt(&r.Number, value)
		case "title":
			r.Title = value
		case "body":
			r.Body = value
			r.Recount()
		}
	case *schema.TagCategory:
		switch label {
		case "name":
			r.Name = value
		case "order":
			return setInt(&r.Order, value)
		case "color":
			r.Color = value
		}
	case *schema.Tag:
		switch label {
		case "name":
			r.Name = value
		case "order":
			return setInt(&r.Order, value)
		case "color":
			r.Color = value
		}
	default:
		return false
	}
	return true
}

// legacyPlotPoints turns one synopsis bucket (a line per point) into plot
// points with fresh ids.
func legacyPlotPoints(value string) []schema.PlotPoint {
	var points []schema.PlotPoint
	for _, line := range strings.Split(value, "\n") {
		line = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "-"))
		if line == "" {
			continue
		}
		points = append(points, schema.PlotPoint{ID: uuid.NewString(), Title: line})
	}
	return points
}

func setInt(dst *int, value string) bool {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return false
	}
	*dst = n
	return true
}
