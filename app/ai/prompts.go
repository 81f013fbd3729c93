package ai

import "fmt"

func enhancePrompt(text string, budget int) string {
	return fmt.Sprintf(
		"You are a professional social media manager. Rewrite this post to be clear, concise, and engaging. "+
			"MUST be UNDER %d CHARACTERS. Summarize if needed. No links, hashtags, emojis. "+
			"Avoid first-person pronouns such as I, we, us, our, my, me. "+
			"Avoid promotional or event-related words like join, host, event, today, tomorrow. "+
			"End with a period. Format: One sentence per line with line breaks.\n\n"+
			"Original (do not exceed %d chars): %s\n\n"+
			"Rewritten (count chars, <=%d): ",
		budget, budget, text, budget-1)
}

func riskPrompt(text string) string {
	return fmt.Sprintf(
		"You are a platform policy expert. Analyze this post for potential rule violations "+
			"(e.g., spam, duplicates, misleading content), high block risk from automated posting, "+
			"or promotional/event language, first-person pronouns, links, hashtags, mentions, threads, "+
			"over-length text, or special symbols. "+
			"Score risk 0-10 (0=safe, 10=high block risk). If >3, suggest a fix to reduce risk.\n\n"+
			"Post: %s\n\n"+
			"Response format: SCORE: X/10\nSUGGESTION: [brief suggestion or 'None']",
		text)
}
