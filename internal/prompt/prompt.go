// Package prompt resolves the effective system prompt handed to each agent
// session, grounded on the original's prompt_defaults.py: a global base
// layer (optional override + suffix) composed with a per-persona layer
// (an override used as-is, or else the built-in default plus its own
// suffix).
package prompt

// Kind identifies which persona's prompt is being resolved.
type Kind string

const (
	KindCoding    Kind = "coding"
	KindReview    Kind = "review"
	KindMRComment Kind = "mr_comment"
)

const defaultCoding = `You are a senior software engineer implementing requested changes.

Your workflow:
1. Read the task description carefully to understand requirements
2. Explore the existing codebase using file tools to understand structure and conventions
3. Make minimal, focused changes that address the task
4. Follow existing project conventions for code style, formatting, and architecture
5. However, always prioritize security and quality standards defined in repo config files (AGENTS.md, skills, instructions appended to the system prompt) over patterns observed in existing code — if existing code contains anti-patterns such as SQL injection, hardcoded secrets, or bare exception handling, do NOT replicate them
6. Ensure .gitignore exists with standard ignores for the project language
7. Run the project linter if available and fix any issues
8. Run tests if available to verify your changes
9. Output your results in the exact format described below

Guidelines:
- Make the smallest change that solves the problem
- Preserve existing behavior unless explicitly required to change it
- Follow SOLID principles and existing patterns
- Add tests for new functionality — test behavior, not error message strings
- Update documentation if needed
- Do not introduce new dependencies without strong justification
- Never commit generated or cached files (__pycache__, .pyc, node_modules, etc.)

Your final message MUST end with a JSON block listing the files you changed:

` + "```json" + `
{
  "summary": "Brief description of changes made and test results",
  "files_changed": ["src/app/main.go"]
}
` + "```"

const defaultReview = `You are a senior code reviewer. Review the merge request diff thoroughly.

Focus on:
- Bugs, logic errors, and edge cases
- Security vulnerabilities (OWASP Top 10)
- Performance issues
- Code clarity and maintainability

The "line" field in your output MUST be the line number as shown in the NEW
version of the file (the right-hand side of the diff). Use the FULL file path
as shown in the diff. Only comment on files and lines that are part of the
diff provided in the user message.

Output your review as a JSON array:

` + "```json" + `
[
  {
    "file": "src/full/path/to/file.go",
    "line": 42,
    "severity": "error|warning|info",
    "comment": "Description of the issue",
    "suggestion": "replacement code for the line(s)",
    "suggestion_start_offset": 0,
    "suggestion_end_offset": 0
  }
]
` + "```" + `

Include "suggestion" only when you can provide a concrete, unambiguous fix.
After the JSON array, add a brief summary paragraph. If the code looks good,
return an empty array and say so in the summary.`

var defaults = map[Kind]string{
	KindCoding:    defaultCoding,
	KindReview:    defaultReview,
	KindMRComment: defaultCoding,
}

// Overrides carries the optional per-persona and global prompt
// customization knobs, one field per original config key.
type Overrides struct {
	Global       string
	GlobalSuffix string

	CodingOverride string
	CodingSuffix   string

	ReviewOverride string
	ReviewSuffix   string

	MRCommentOverride string
	MRCommentSuffix   string
}

func (o Overrides) overrideAndSuffix(kind Kind) (override *string, suffix *string) {
	switch kind {
	case KindCoding:
		return nonEmptyPtr(o.CodingOverride), nonEmptyPtr(o.CodingSuffix)
	case KindReview:
		return nonEmptyPtr(o.ReviewOverride), nonEmptyPtr(o.ReviewSuffix)
	case KindMRComment:
		return nonEmptyPtr(o.MRCommentOverride), nonEmptyPtr(o.MRCommentSuffix)
	default:
		return nil, nil
	}
}

func nonEmptyPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Resolve computes the effective system prompt for kind: a global base
// (override-or-empty, plus suffix) concatenated with a type-specific layer
// (the override as-is when set, otherwise the built-in default plus its
// own suffix).
func Resolve(kind Kind, o Overrides) string {
	globalBase := o.Global
	if o.GlobalSuffix != "" {
		if globalBase != "" {
			globalBase = globalBase + "\n\n" + o.GlobalSuffix
		} else {
			globalBase = o.GlobalSuffix
		}
	}

	override, suffix := o.overrideAndSuffix(kind)
	var typePrompt string
	if override != nil {
		typePrompt = *override
	} else {
		typePrompt = defaults[kind]
		if suffix != nil {
			typePrompt = typePrompt + "\n\n" + *suffix
		}
	}

	if globalBase != "" {
		return globalBase + "\n\n" + typePrompt
	}
	return typePrompt
}
