// Package gemini implements dispatch.Generator on top of the Google Gemini API
// via google.golang.org/genai. It is selected with llm.provider = "gemini".
package gemini
