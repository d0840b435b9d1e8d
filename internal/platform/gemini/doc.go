// Package gemini provides an implementation of the capability.AI interface
// backed by Google's Gemini API.
//
// This package is an infrastructure adapter: it turns vendor profiles and
// conversation turns into prompts, calls the model, and maps structured
// JSON responses back into capability results without exposing the genai
// client to the rest of the application.
//
// Key components:
//
// 1. AI:
//   - Implements capability.AI (GenerateMessage, VerifyDocument, AdvanceConversation)
//   - Keeps a bounded per-vendor conversation history in memory
//
// 2. Prompt Management:
//   - Prompt templates are embedded at build time from prompts/
//   - Template output is sent as a single user turn
//
// 3. Error Handling:
//   - Transport failures are retried with exponential backoff and end as
//     capability.ErrTransient
//   - Safety blocks and malformed responses are permanent
package gemini
