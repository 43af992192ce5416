package generation

import (
	"fmt"
	"strings"

	"contentstudio/internal/catalog"
	"contentstudio/internal/content"
	"contentstudio/internal/workflow"
	"contentstudio/pkg/aiinterface"
)

const systemPrompt = `You are a senior social media copywriter.
Write platform-native copy that is specific, concrete and free of filler.
Hashtags never include the leading # symbol.
Always answer with a single JSON object that matches the provided schema.`

// promptBuilder 拼装生成与重新生成的消息
type promptBuilder struct {
	budget *PromptBudget
}

func (b promptBuilder) ideaSection(rec *workflow.IdeaRecord) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Idea:\n%s\n", strings.TrimSpace(rec.OriginalInput))
	if rec.ResearchData != "" {
		fmt.Fprintf(&sb, "\nResearch notes:\n%s\n", b.budget.Trim(rec.ResearchData))
	}
	if rec.AdditionalContext != "" {
		fmt.Fprintf(&sb, "\nAdditional context:\n%s\n", b.budget.Trim(rec.AdditionalContext))
	}
	if rec.Instructions != "" {
		fmt.Fprintf(&sb, "\nAuthor instructions:\n%s\n", rec.Instructions)
	}
	return sb.String()
}

func optionsSection(desc catalog.Descriptor, opts catalog.Options) string {
	var lines []string
	if tone := opts.String("tone"); tone != "" {
		lines = append(lines, "Tone: "+tone)
	}
	if length := opts.String("length"); length != "" {
		lines = append(lines, "Length: "+length)
	}
	if _, declared := opts["include_cta"]; declared {
		if opts.Bool("include_cta") {
			lines = append(lines, "End with a clear call to action.")
		} else {
			lines = append(lines, "Do not add a call to action.")
		}
	}
	if d, ok := opts.Int("duration"); ok {
		lines = append(lines, fmt.Sprintf("Video length: %d seconds", d))
	}
	platforms := make([]string, 0, len(desc.Platforms))
	for _, p := range desc.Platforms {
		platforms = append(platforms, string(p))
	}
	lines = append(lines, "Target platforms: "+strings.Join(platforms, ", "))
	return strings.Join(lines, "\n")
}

func shapeSection(shape Shape) string {
	switch shape.Category {
	case catalog.CategoryCarousel:
		return fmt.Sprintf("Write a carousel of exactly %d slides plus a caption and %d-%d hashtags.",
			shape.Count, content.MinHashtags, content.MaxHashtags)
	case catalog.CategoryThread:
		return fmt.Sprintf("Write a thread of exactly %d tweets plus %d-%d hashtags.",
			shape.Count, content.MinHashtags, content.MaxHashtags)
	case catalog.CategoryTemplateDriven:
		var sb strings.Builder
		sb.WriteString("Fill exactly these template fields, nothing else:\n")
		for _, f := range shape.Fields {
			kind := "narrative copy"
			if f.Headline {
				kind = fmt.Sprintf("short high-impact on-image text, max %d words", HeadlineMaxWords)
			}
			fmt.Fprintf(&sb, "- %s (%s): %s\n", f.Name, f.Label, kind)
		}
		fmt.Fprintf(&sb, "Also write a caption and %d-%d hashtags.", content.MinHashtags, content.MaxHashtags)
		return sb.String()
	default:
		return fmt.Sprintf("Write the post %s and %d-%d hashtags.", shape.BodyField, content.MinHashtags, content.MaxHashtags)
	}
}

// generateMessages 整体生成一个格式
func (b promptBuilder) generateMessages(rec *workflow.IdeaRecord, desc catalog.Descriptor, opts catalog.Options, shape Shape) []aiinterface.Message {
	user := fmt.Sprintf("%s\nFormat: %s\n%s\n\n%s",
		b.ideaSection(rec), desc.Name, optionsSection(desc, opts), shapeSection(shape))
	return []aiinterface.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: user},
	}
}

// regenerateMessages 只重写目标部分，附带当前值和用户反馈
func (b promptBuilder) regenerateMessages(rec *workflow.IdeaRecord, desc catalog.Descriptor, opts catalog.Options, target content.Target, current, feedback string) []aiinterface.Message {
	scope := "the whole post"
	if !target.IsWhole() {
		scope = "only the part `" + target.String() + "`"
	}
	var sb strings.Builder
	sb.WriteString(b.ideaSection(rec))
	fmt.Fprintf(&sb, "\nFormat: %s\n%s\n\n", desc.Name, optionsSection(desc, opts))
	fmt.Fprintf(&sb, "Rewrite %s. Keep the structure and field names unchanged.\n", scope)
	fmt.Fprintf(&sb, "\nCurrent version:\n%s\n", current)
	if strings.TrimSpace(feedback) != "" {
		fmt.Fprintf(&sb, "\nFeedback to apply:\n%s\n", feedback)
	}
	return []aiinterface.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: sb.String()},
	}
}
