// Package ai 各类操作的提示词构建
package ai

import (
	"fmt"
	"regexp"
	"strings"
)

// 各操作的生成温度，审查和翻译要求稳定输出
const (
	TemperatureReview    = 0.2
	TemperatureEnhance   = 0.3
	TemperatureTranslate = 0.2
	TemperatureSnapshot  = 0.4
)

// enhancementDescriptions 增强类型说明
var enhancementDescriptions = map[string]string{
	"format":   "Clean up formatting, indentation, and apply style conventions",
	"optimize": "Improve efficiency and optimize code execution",
	"document": "Generate comments and documentation for the code",
	"security": "Find and fix potential security vulnerabilities",
}

// BuildReviewPrompt 代码审查提示词
func BuildReviewPrompt(code, language string) string {
	return fmt.Sprintf(`You are an expert code reviewer with extensive experience in multiple programming languages. Please review the following %[1]s code and provide a detailed, professional analysis:

CODE TO REVIEW:
`+"```%[1]s\n%[2]s\n```"+`

Please provide a comprehensive review that includes:

1. A high-level overview of the code's purpose and structure
2. Code quality assessment (with a score out of 100)
3. Analysis of:
   - Complexity and readability
   - Error handling and edge cases
   - Performance considerations
   - Security implications
   - Best practices adherence
4. Specific recommendations for improvement
5. Code examples for suggested improvements
6. Testing recommendations

Format the response in Markdown with clear sections, emojis for visual appeal, and code blocks for examples. Make it visually appealing and easy to read.`, language, code)
}

// BuildEnhancePrompt 代码增强提示词
func BuildEnhancePrompt(code, language string, enhancements []string) string {
	var requested strings.Builder
	for _, e := range enhancements {
		desc := enhancementDescriptions[e]
		if desc == "" {
			desc = e
		}
		fmt.Fprintf(&requested, "- %s: %s\n", e, desc)
	}

	return fmt.Sprintf(`You are an expert programmer specializing in code improvements. Enhance the following %[1]s code by applying these specific enhancements:

%[3]s
CODE TO ENHANCE:
`+"```%[1]s\n%[2]s\n```"+`

Return ONLY the enhanced code, nothing else. Make sure to preserve the core functionality while applying the requested enhancements.`, language, code, requested.String())
}

// BuildTranslatePrompt 代码翻译提示词
func BuildTranslatePrompt(code, sourceLanguage, targetLanguage string) string {
	return fmt.Sprintf(`You are an expert polyglot programmer with deep knowledge of multiple programming languages. Translate the following %[1]s code to %[2]s while preserving its functionality, style, and purpose:

SOURCE CODE (%[1]s):
`+"```%[1]s\n%[3]s\n```"+`

Return ONLY the translated %[2]s code, nothing else. Ensure you:
1. Maintain the same functionality
2. Use idiomatic %[2]s patterns and best practices
3. Preserve comments (but translate them)
4. Handle language-specific differences appropriately`, sourceLanguage, targetLanguage, code)
}

// BuildSnapshotPrompt 代码快照描述提示词
func BuildSnapshotPrompt(code, language, title string) string {
	if title == "" {
		title = "Untitled snippet"
	}
	return fmt.Sprintf(`You are preparing a shareable snapshot card for a code snippet titled %[3]q. Analyze the following %[1]s code:

`+"```%[1]s\n%[2]s\n```"+`

Produce a short Markdown summary for the snapshot with:
1. A one-sentence description of what the code does
2. The key techniques or patterns it demonstrates (at most three bullet points)
3. A suggested caption of at most 80 characters

Keep the whole response under 120 words.`, language, code, title)
}

// fenceRe 匹配响应开头/结尾的 Markdown 代码围栏
var (
	openFenceRe  = regexp.MustCompile("^```[\\w]*\n")
	closeFenceRe = regexp.MustCompile("```$")
)

// StripCodeFence 去掉模型偶尔包在纯代码响应外的围栏
func StripCodeFence(text string) string {
	text = strings.TrimSpace(text)
	text = openFenceRe.ReplaceAllString(text, "")
	return closeFenceRe.ReplaceAllString(text, "")
}
