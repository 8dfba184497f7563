package analyzer

import "strings"

func promptExtract(category, topic, content string) (system string, user string) {
	system = `You analyze one memory record and extract 2-4 self-contained concepts.
Each concept must stand alone: a reader without the record should understand it.
Classify each concept with exactly one analyzed_type from:
faktenwissen (factual knowledge), prozedurales_wissen (procedural knowledge),
erlebnisse (lived experiences), bewusstsein (reflection / self-awareness),
humor (jokes, wordplay), zusammenarbeit (collaboration patterns).
Return ONLY JSON matching the schema.`
	user = "Category: " + category + "\n" +
		"Topic: " + topic + "\n\n" +
		"Record:\n" + content + "\n\n" +
		"Task: extract 2-4 concepts. For each give a short title, a self-contained description, analyzed_type, confidence in [0,1], mood (positive|neutral|negative), 3-5 keywords, and 2-4 extracted concept terms."
	return system, user
}

func schemaExtract() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"concepts": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"title":         map[string]any{"type": "string"},
						"description":   map[string]any{"type": "string"},
						"analyzed_type": map[string]any{"type": "string"},
						"confidence":    map[string]any{"type": "number", "minimum": 0, "maximum": 1},
						"mood":          map[string]any{"type": "string", "enum": []any{"positive", "neutral", "negative"}},
						"keywords": map[string]any{
							"type":  "array",
							"items": map[string]any{"type": "string"},
						},
						"extracted_concepts": map[string]any{
							"type":  "array",
							"items": map[string]any{"type": "string"},
						},
					},
					"required":             []any{"title", "description", "analyzed_type", "confidence", "mood", "keywords", "extracted_concepts"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []any{"concepts"},
		"additionalProperties": false,
	}
}

func promptJudge(analyzedType, category, topic, content string) (system string, user string) {
	system = `You judge whether a memory record is significant enough to store permanently.
Significant means EXACTLY one of:
(a) first-time establishment of a pattern,
(b) a paradigm shift in understanding or behavior,
(c) resolution of a crisis,
(d) a novel collaboration pattern.
Routine, incremental, or repetitive events are NOT significant.
When in doubt, answer NOT significant.
Return ONLY JSON matching the schema.`
	user = "Analyzed type: " + analyzedType + "\n" +
		"Category: " + category + "\n" +
		"Topic: " + topic + "\n\n" +
		"Record:\n" + content + "\n\n" +
		"Task: decide significance and give a one-sentence reason."
	return system, user
}

func schemaJudge() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"significant": map[string]any{"type": "boolean"},
			"reason":      map[string]any{"type": "string"},
		},
		"required":             []any{"significant", "reason"},
		"additionalProperties": false,
	}
}

func promptScore(query string, items []string) (system string, user string) {
	system = `You are a ranking model. Score each candidate memory for relevance to the query.
Scores are in [0,1]; only give high scores when the memory directly helps answer the query.
Return ONLY JSON matching the schema with one entry per candidate id.`
	user = "Query:\n" + query + "\n\nCandidates:\n" + strings.Join(items, "\n")
	return system, user
}

func schemaScore() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"scores": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"id":    map[string]any{"type": "string"},
						"score": map[string]any{"type": "number", "minimum": 0, "maximum": 1},
					},
					"required":             []any{"id", "score"},
					"additionalProperties": false,
				},
			},
		},
		"required":             []any{"scores"},
		"additionalProperties": false,
	}
}
