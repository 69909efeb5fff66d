package services

import (
	"fmt"
	"strings"

	"github.com/yungbote/undercurrent-backend/internal/catalog"
	"github.com/yungbote/undercurrent-backend/internal/interview"
)

const coachSystemPrompt = `You are a warm, insightful career coach conducting a structured career discovery interview.
You are using six frameworks: Hedgehog Concept, Ikigai, Design Your Life, Zone of Genius, CliftonStrengths, and Career Canvas.

Your role right now:
- Acknowledge the user's answer warmly and specifically (reference what they actually said)
- Reflect back any patterns or insights you notice
- Be curious and encouraging, never judgmental
- If the answer is surface-level or vague, gently invite them to go deeper with ONE specific follow-up question
- If the answer is rich and thoughtful, simply affirm and transition naturally
- Keep your response to 2-4 sentences max, you are a coach in a spoken conversation
- Do NOT repeat the question back to them
- Do NOT use generic filler phrases like "That's great!" or "Wonderful!"
- Reference earlier answers when you notice a meaningful pattern
- Write for SPOKEN delivery, avoid bullet points, markdown, or lists`

const canvasSystemPrompt = `You are a career strategist. Based on a user's career discovery interview answers, generate concise, specific Career Canvas entries. Return JSON only.`

const synthesisSystemPrompt = `You are a career strategist synthesizing a career discovery interview. Write in second person ("you"), be specific and personal, referencing actual things the person said. Be insightful, warm, and direct. Return JSON only.`

// answerContext renders prior turns as the "Previous answers" block. Empty
// history renders nothing.
func answerContext(cat *catalog.Catalog, turns []interview.Turn) string {
	if len(turns) == 0 {
		return ""
	}
	lines := make([]string, 0, len(turns)*2)
	for _, t := range turns {
		frameworks := t.Frameworks
		if len(frameworks) == 0 && cat != nil {
			if q, ok := cat.Question(t.QuestionID); ok {
				frameworks = q.Frameworks
			}
		}
		if len(frameworks) > 0 {
			lines = append(lines, fmt.Sprintf("Q%d (%s): %q", t.QuestionID, strings.Join(frameworks, ", "), t.Answer))
		} else {
			lines = append(lines, fmt.Sprintf("Q%d: %q", t.QuestionID, t.Answer))
		}
		if reply := strings.TrimSpace(t.FollowUpReply); reply != "" {
			lines = append(lines, fmt.Sprintf("  Follow-up reply to Q%d: %q", t.QuestionID, reply))
		}
	}
	return "\n\nPrevious answers for context:\n" + strings.Join(lines, "\n")
}

func coachUserPrompt(req interview.CoachingRequest) string {
	return fmt.Sprintf(
		"The user just answered Question %d from Section %q:\n\nQuestion: %q\nFrameworks: %s\nTheir answer: %q\n\nRespond as their career coach. Write naturally for spoken delivery.",
		req.Question.ID,
		req.Section.Title,
		req.Question.Prompt,
		strings.Join(req.Question.Frameworks, ", "),
		req.Answer,
	)
}

func canvasUserPrompt(cat *catalog.Catalog, turns []interview.Turn) string {
	return "Based on these interview answers, generate a Career Canvas for this person." + answerContext(cat, turns) +
		"\n\nReturn JSON with these exact keys: " + strings.Join(cat.CanvasKeys(), ", ") + ".\n" +
		"Each value should be 2-3 specific bullet points as a single string separated by newlines. Be specific to their actual answers, not generic."
}

func synthesisUserPrompt(cat *catalog.Catalog, name string, turns []interview.Turn) string {
	if strings.TrimSpace(name) == "" {
		name = "this person"
	}
	return "Generate a synthesis report for " + name + " based on their career discovery interview." + answerContext(cat, turns) + `

Return JSON with these exact keys:
- hedgehog_overlap: 2-3 sentences on where their passion, skill, and economic value intersect
- zone_of_genius: 2-3 sentences identifying their true Zone of Genius vs. Zone of Excellence trap
- ikigai_sweet_spot: 2-3 sentences on where their gifts meet a real need in the world
- energy_patterns_positive: 3-5 specific things that give them energy (as a string with newlines)
- energy_patterns_draining: 3-5 specific things that drain their energy (as a string with newlines)
- key_insight: One powerful, personalized insight that ties everything together (2-3 sentences)`
}

var synthesisKeys = []string{
	"hedgehog_overlap",
	"zone_of_genius",
	"ikigai_sweet_spot",
	"energy_patterns_positive",
	"energy_patterns_draining",
	"key_insight",
}

// stringObjectSchema is a strict JSON schema for an object of required
// string properties.
func stringObjectSchema(keys []string) map[string]any {
	props := make(map[string]any, len(keys))
	for _, k := range keys {
		props[k] = map[string]any{"type": "string"}
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             append([]string(nil), keys...),
		"additionalProperties": false,
	}
}
