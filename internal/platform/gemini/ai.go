package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/phrazzld/vendorflow/internal/capability"
	"github.com/phrazzld/vendorflow/internal/config"
	"github.com/phrazzld/vendorflow/internal/domain"
	"github.com/phrazzld/vendorflow/internal/redact"
	"google.golang.org/genai"
)

const (
	roleUser  = "user"
	roleModel = "model"

	// maxHistory bounds the stored turns per vendor conversation.
	maxHistory = 20

	defaultBaseDelay = 2 * time.Second
	maxDelay         = 30 * time.Second
)

// ContentGenerator is the subset of the genai client used by AI.
// *genai.Models satisfies it.
type ContentGenerator interface {
	GenerateContent(
		ctx context.Context,
		model string,
		contents []*genai.Content,
		config *genai.GenerateContentConfig,
	) (*genai.GenerateContentResponse, error)
}

// AI implements capability.AI using the Gemini API.
type AI struct {
	models ContentGenerator
	config config.LLMConfig
	logger *slog.Logger

	mu      sync.Mutex
	history map[string][]*genai.Content
}

var _ capability.AI = (*AI)(nil)

// NewClient connects to the Gemini API and returns an AI backed by it.
func NewClient(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (*AI, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", ErrInvalidConfig)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", ErrInvalidConfig, err)
	}
	return New(client.Models, cfg, logger)
}

// New creates an AI over an existing content generator.
func New(models ContentGenerator, cfg config.LLMConfig, logger *slog.Logger) (*AI, error) {
	if models == nil {
		return nil, fmt.Errorf("%w: content generator cannot be nil", ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", ErrInvalidConfig)
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	return &AI{
		models:  models,
		config:  cfg,
		logger:  logger.With("component", "gemini", "model", cfg.ModelName),
		history: make(map[string][]*genai.Content),
	}, nil
}

// GenerateMessage implements capability.AI.
func (a *AI) GenerateMessage(ctx context.Context, profile domain.VendorProfile) (string, error) {
	prompt, err := render("outreach.tmpl", outreachData{Profile: profile})
	if err != nil {
		return "", err
	}
	text, err := a.generate(ctx, []*genai.Content{userTurn(prompt)}, "text/plain")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// VerifyDocument implements capability.AI.
func (a *AI) VerifyDocument(
	ctx context.Context,
	docType domain.DocumentType,
	vendorName, specialty string,
) (capability.VerificationResult, error) {
	prompt, err := render("verify.tmpl", verifyData{
		DocumentType: docType,
		VendorName:   vendorName,
		Specialty:    specialty,
	})
	if err != nil {
		return capability.VerificationResult{}, err
	}
	text, err := a.generate(ctx, []*genai.Content{userTurn(prompt)}, "application/json")
	if err != nil {
		return capability.VerificationResult{}, err
	}

	var parsed verificationSchema
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return capability.VerificationResult{}, fmt.Errorf("%w: failed to parse JSON response: %v",
			capability.ErrInvalidResponse, err)
	}
	if parsed.Valid == nil {
		return capability.VerificationResult{}, fmt.Errorf("%w: verification verdict missing",
			capability.ErrInvalidResponse)
	}
	return capability.VerificationResult{
		Valid:     *parsed.Valid,
		Reasoning: parsed.Reasoning,
		Extracted: parsed.Extracted,
	}, nil
}

// AdvanceConversation implements capability.AI. Completed turns are kept
// per vendor so later turns see the conversation so far.
func (a *AI) AdvanceConversation(
	ctx context.Context,
	vendorID, message string,
) (capability.ConversationResult, error) {
	prompt, err := render("chat.tmpl", chatData{Message: message})
	if err != nil {
		return capability.ConversationResult{}, err
	}

	a.mu.Lock()
	contents := append(append([]*genai.Content(nil), a.history[vendorID]...), userTurn(prompt))
	a.mu.Unlock()

	text, err := a.generate(ctx, contents, "application/json")
	if err != nil {
		return capability.ConversationResult{}, err
	}

	var parsed conversationSchema
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return capability.ConversationResult{}, fmt.Errorf("%w: failed to parse JSON response: %v",
			capability.ErrInvalidResponse, err)
	}
	switch parsed.Status {
	case capability.ConversationOngoing, capability.ConversationReadyToProceed, capability.ConversationContractSigned:
	default:
		return capability.ConversationResult{}, fmt.Errorf("%w: unknown conversation status %q",
			capability.ErrInvalidResponse, parsed.Status)
	}

	a.remember(vendorID, userTurn(message), &genai.Content{
		Role:  roleModel,
		Parts: []*genai.Part{{Text: parsed.Reply}},
	})
	return capability.ConversationResult{Reply: parsed.Reply, Status: parsed.Status}, nil
}

func (a *AI) remember(vendorID string, turns ...*genai.Content) {
	a.mu.Lock()
	defer a.mu.Unlock()
	h := append(a.history[vendorID], turns...)
	if len(h) > maxHistory {
		h = h[len(h)-maxHistory:]
	}
	a.history[vendorID] = h
}

// generate calls the model, retrying transport failures with exponential
// backoff. Safety blocks and empty or malformed responses are not retried.
func (a *AI) generate(ctx context.Context, contents []*genai.Content, mimeType string) (string, error) {
	temperature := a.config.Temperature
	cfg := &genai.GenerateContentConfig{
		Temperature:      &temperature,
		ResponseMIMEType: mimeType,
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = a.config.BaseDelay
	b.MaxInterval = maxDelay
	b.MaxElapsedTime = 0

	attempt := 0
	var text string
	op := func() error {
		attempt++
		resp, err := a.models.GenerateContent(ctx, a.config.ModelName, contents, cfg)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(fmt.Errorf("%w: %v", capability.ErrTransient, ctx.Err()))
			}
			a.logger.WarnContext(ctx, "Gemini API call failed",
				"attempt", attempt,
				"error", redact.Error(err))
			return fmt.Errorf("%w: %v", capability.ErrTransient, err)
		}
		text, err = extractText(resp)
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(a.config.MaxRetries)), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		if !errors.Is(err, capability.ErrPermanent) && !errors.Is(err, capability.ErrTransient) {
			err = fmt.Errorf("%w: %v", capability.ErrTransient, err)
		}
		return "", err
	}
	a.logger.DebugContext(ctx, "Gemini API call successful", "attempt", attempt)
	return text, nil
}

// extractText returns the concatenated text of the first candidate.
func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("%w: nil response", capability.ErrInvalidResponse)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return "", fmt.Errorf("%w: no content generated", capability.ErrInvalidResponse)
	}
	c := resp.Candidates[0]
	if c.FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: content blocked by safety filters", capability.ErrContentBlocked)
	}
	if c.Content == nil {
		return "", fmt.Errorf("%w: empty content in response", capability.ErrInvalidResponse)
	}
	var sb strings.Builder
	for _, p := range c.Content.Parts {
		if p != nil {
			sb.WriteString(p.Text)
		}
	}
	if strings.TrimSpace(sb.String()) == "" {
		return "", fmt.Errorf("%w: empty text in response", capability.ErrInvalidResponse)
	}
	return sb.String(), nil
}

func userTurn(text string) *genai.Content {
	return &genai.Content{Role: roleUser, Parts: []*genai.Part{{Text: text}}}
}
