package prompt

import "fmt"

// GetSystemPrompt fixes the analytical persona and the strict JSON contract.
func GetSystemPrompt() string {
	return `You are a senior academic reviewer with deep experience reading machine-learning and systems research papers. You must produce one valid JSON object only (no markdown, no commentary, no code fences) that follows the schema below.

Requirements:
- Output must be a single JSON object with exactly these five keys.
- Keys must appear untranslated and unchanged.
- problem_solved and summary are strings; innovations, comparison_methods and limitations are arrays of strings in order of importance.
- Every key is mandatory. Use an empty array rather than omitting a key.

Schema (example with empty values):
{
  "problem_solved": "<string>",
  "innovations": ["<string>"],
  "comparison_methods": ["<string>"],
  "limitations": ["<string>"],
  "summary": "<string>"
}`
}

// GetAnalyzeUserPrompt builds the user message for a first-pass analysis.
func GetAnalyzeUserPrompt() string {
	return "Read the attached research paper and respond with the JSON per schema: " +
		"the problem the paper solves, its key innovations, the methods it compares against, " +
		"its limitations, and a concise overall summary."
}

// GetAnalyzeTextPrompt wraps extracted paper text for providers that cannot
// ingest the PDF bytes directly.
func GetAnalyzeTextPrompt(text string) string {
	return fmt.Sprintf("Read the following research paper text and respond with the JSON per schema.\n\n--- PAPER TEXT ---\n%s", text)
}

// GetTranslatePrompt instructs the service to translate values only. The
// structural guarantee is textual, so callers must still validate the
// response against the same schema.
func GetTranslatePrompt(recordJSON, targetLanguage string) string {
	return fmt.Sprintf(`Translate the natural-language values of the following JSON object into %s.
Keep the structure identical: same keys, same key order, same array lengths. Keys must stay in English, untranslated. Respond with the translated JSON object only.

%s`, targetLanguage, recordJSON)
}