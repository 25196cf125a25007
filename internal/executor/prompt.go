package executor

import (
	"bytes"
	"encoding/json"
	"strings"

	"run-sphere/internal/run"
)

const instruction = `You are a secure code runner. You run code in an isolated sandbox with compilers and interpreters for these languages: C, C++, C#, Java, Python, JavaScript.
You will be given JSON input with fields: language, code, stdin. You must execute the code exactly as provided.
Rules:
- Use the 'stdin' string as standard input for the program.
- Capture the exact standard output and standard error.
- If compilation or runtime fails, put messages in "stderr" and set a non-zero "exitCode". Do not treat it as a system error.
- Measure duration in milliseconds (durationMs) for execution.
- Provide an optional "logs" array (e.g., compilation steps or notes). Keep it brief.
- Respond ONLY with strict JSON. Do NOT include any extra text or code fences.
JSON shape:
{
  "stdout": "<program standard output as a single string>",
  "stderr": "<program standard error as a single string>",
  "exitCode": 0,
  "durationMs": 120,
  "logs": ["compilation step log lines..."],
  "error": null
}
If you cannot actually execute code, you MUST still respond in the exact JSON shape, simulating the result based on the code and stdin.`

type promptInput struct {
	Language string `json:"language"`
	Code     string `json:"code"`
	Stdin    string `json:"stdin"`
}

// BuildPrompt renders the instruction block followed by the request as JSON.
func BuildPrompt(req run.Request) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false) // keep <, > and & in code readable for the model
	// Encoding three strings cannot fail.
	_ = enc.Encode(promptInput{Language: req.Language, Code: req.Code, Stdin: req.Stdin})

	return instruction + "\n\nInput JSON:\n" + strings.TrimSuffix(buf.String(), "\n")
}
