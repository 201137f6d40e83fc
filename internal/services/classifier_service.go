package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"closingflow/internal/constants"
	"closingflow/internal/models"
)

// MessageClassificationInput is what the classifier sees of a message.
type MessageClassificationInput struct {
	Subject    string
	From       string
	To         []string
	ReceivedAt time.Time
	Body       string
}

// StageClassification is the first-pass result: which pipeline stage a
// message is about, and how sure the model is.
type StageClassification struct {
	PrimaryStage models.StageLabel `json:"primary_stage"`
	Confidence   float64           `json:"confidence"`
	Summary      string            `json:"summary"`
	Warnings     []string          `json:"warnings,omitempty"`
}

// DraftContext carries everything the drafting model needs for the
// earnest-money email.
type DraftContext struct {
	PropertyAddress    string
	BuyerName          string
	EscrowOfficerName  string
	EscrowOfficerEmail string
	EarnestAmountCents int64
	EarnestDeadline    *time.Time
	AttachmentFileName string
}

type DraftResult struct {
	Subject          string `json:"subject"`
	Body             string `json:"body"`
	GenerationReason string `json:"generation_reason"`
}

// Classifier is the boundary to the AI collaborators. Outputs are
// untrusted, possibly wrong, and must be confidence-gated by callers.
type Classifier interface {
	ClassifyMessage(ctx context.Context, in MessageClassificationInput) (*StageClassification, error)
	ClassifyEarnestSignal(ctx context.Context, in MessageClassificationInput) (*models.EarnestSignalResult, error)
	DetectDocument(ctx context.Context, pdf []byte, filename string) (*models.DocumentDetection, error)
	ComposeEarnestDraft(ctx context.Context, in DraftContext) (*DraftResult, error)
}

// OpenAIService wraps the OpenAI client. If client is nil, every call
// degrades to an inert fallback so the pipeline keeps working without
// AI assistance.
type OpenAIService struct {
	client *openai.Client
}

// NewOpenAIService creates the service. Pass an empty apiKey to disable calls.
func NewOpenAIService(apiKey string) *OpenAIService {
	if apiKey == "" {
		return &OpenAIService{client: nil}
	}
	c := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIService{client: &c}
}

var stageLabels = []string{
	string(models.StageUnderContract),
	string(models.StageEarnestMoney),
	string(models.StageDueDiligence),
	string(models.StageFinancing),
	string(models.StageTitleEscrow),
	string(models.StageClosing),
	"other",
}

func (s *OpenAIService) ClassifyMessage(ctx context.Context, in MessageClassificationInput) (*StageClassification, error) {
	if s.client == nil {
		return &StageClassification{
			Confidence: 0,
			Warnings:   []string{"classifier disabled"},
		}, nil
	}

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"primary_stage": map[string]any{"type": "string", "enum": stageLabels},
			"confidence":    map[string]any{"type": "number"},
			"summary":       map[string]string{"type": "string"},
			"warnings":      map[string]any{"type": "array", "items": map[string]string{"type": "string"}},
		},
		"required":             []string{"primary_stage", "confidence", "summary", "warnings"},
		"additionalProperties": false,
	}

	prompt := fmt.Sprintf(`Classify this email from a real-estate closing inbox.

From: %s
To: %s
Received: %s
Subject: %s

%s

Return JSON by calling classify_closing_email(strict).
primary_stage is the pipeline stage the email is about; "other" if none.
confidence is your certainty in [0,1]. summary is one sentence.`,
		in.From,
		strings.Join(in.To, ", "),
		in.ReceivedAt.UTC().Format(time.RFC1123Z),
		in.Subject,
		truncate(in.Body, 6000),
	)

	var out StageClassification
	if err := s.callFunction(ctx, "classify_closing_email",
		"Classify which closing-pipeline stage an email relates to.", schema, prompt, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *OpenAIService) ClassifyEarnestSignal(ctx context.Context, in MessageClassificationInput) (*models.EarnestSignalResult, error) {
	if s.client == nil {
		return &models.EarnestSignalResult{
			Signal: models.EarnestSignalNone,
			Reason: "classifier disabled",
		}, nil
	}

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"signal": map[string]any{
				"type": "string",
				"enum": []string{
					string(models.EarnestSignalNone),
					string(models.EarnestSignalWireInstructions),
					string(models.EarnestSignalReceivedConfirmation),
				},
			},
			"suggested_action": map[string]string{"type": "string"},
			"confidence":       map[string]any{"type": "number"},
			"reason":           map[string]string{"type": "string"},
		},
		"required":             []string{"signal", "suggested_action", "confidence", "reason"},
		"additionalProperties": false,
	}

	prompt := fmt.Sprintf(`This email was classified as earnest-money related.

From: %s
Subject: %s

%s

Return JSON by calling extract_earnest_signal(strict).
signal rules:
1. wire_instructions_provided if the sender supplies wiring/deposit instructions for the earnest money.
2. earnest_received_confirmation if the sender confirms the earnest deposit was received.
3. none otherwise.`,
		in.From,
		in.Subject,
		truncate(in.Body, 6000),
	)

	var out models.EarnestSignalResult
	if err := s.callFunction(ctx, "extract_earnest_signal",
		"Extract the earnest-money signal from an email.", schema, prompt, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *OpenAIService) DetectDocument(ctx context.Context, pdf []byte, filename string) (*models.DocumentDetection, error) {
	if s.client == nil {
		return &models.DocumentDetection{
			IsMatch:  false,
			Warnings: []string{"classifier disabled"},
		}, nil
	}

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"is_match":      map[string]string{"type": "boolean"},
			"document_type": map[string]string{"type": "string"},
			"confidence":    map[string]any{"type": "number"},
			"summary":       map[string]string{"type": "string"},
			"warnings":      map[string]any{"type": "array", "items": map[string]string{"type": "string"}},
		},
		"required":             []string{"is_match", "document_type", "confidence", "summary", "warnings"},
		"additionalProperties": false,
	}

	prompt := fmt.Sprintf(`Decide whether this PDF is an ALTA settlement statement.

Filename: %s
Size: %d bytes
Extracted text (may be partial or empty for scanned documents):

%s

Return JSON by calling detect_closing_document(strict).
is_match=true only for an ALTA settlement statement; document_type should then be %q.
confidence is your certainty in [0,1]. summary is one sentence, or "" when is_match is false.`,
		filename,
		len(pdf),
		pdfTextPreview(pdf),
		constants.AltaDocumentType,
	)

	var raw struct {
		IsMatch      bool     `json:"is_match"`
		DocumentType string   `json:"document_type"`
		Confidence   float64  `json:"confidence"`
		Summary      string   `json:"summary"`
		Warnings     []string `json:"warnings"`
	}
	if err := s.callFunction(ctx, "detect_closing_document",
		"Detect whether a PDF is an ALTA settlement statement.", schema, prompt, &raw); err != nil {
		return nil, err
	}

	det := &models.DocumentDetection{
		IsMatch:      raw.IsMatch,
		DocumentType: raw.DocumentType,
		Confidence:   raw.Confidence,
		Warnings:     raw.Warnings,
	}
	if raw.Summary != "" {
		det.Summary = &raw.Summary
	}
	return det, nil
}

func (s *OpenAIService) ComposeEarnestDraft(ctx context.Context, in DraftContext) (*DraftResult, error) {
	if s.client == nil {
		return templateEarnestDraft(in), nil
	}

	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"subject":           map[string]string{"type": "string"},
			"body":              map[string]string{"type": "string"},
			"generation_reason": map[string]string{"type": "string"},
		},
		"required":             []string{"subject", "body", "generation_reason"},
		"additionalProperties": false,
	}

	deadline := "not specified"
	if in.EarnestDeadline != nil {
		deadline = in.EarnestDeadline.Format("January 2, 2006")
	}
	prompt := fmt.Sprintf(`Draft a short, professional email to an escrow officer to open escrow
and arrange the earnest-money deposit. The executed purchase contract is attached.

Property: %s
Buyer: %s
Escrow officer: %s <%s>
Earnest amount: %s
Earnest deadline: %s
Attachment: %s

Return JSON by calling compose_earnest_email(strict).
The body is plain text, addressed to the escrow officer by name, and must
ask for wire instructions. generation_reason is one sentence on the choices made.`,
		in.PropertyAddress,
		in.BuyerName,
		in.EscrowOfficerName,
		in.EscrowOfficerEmail,
		formatCents(in.EarnestAmountCents),
		deadline,
		in.AttachmentFileName,
	)

	var out DraftResult
	if err := s.callFunction(ctx, "compose_earnest_email",
		"Compose the earnest-money email to the escrow officer.", schema, prompt, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// callFunction runs a single forced function call and unmarshals the
// arguments into out.
func (s *OpenAIService) callFunction(
	ctx context.Context,
	name string,
	description string,
	schema map[string]any,
	prompt string,
	out any,
) error {
	fn := shared.FunctionDefinitionParam{
		Name:        name,
		Description: openai.String(description),
		Strict:      openai.Bool(true),
		Parameters:  schema,
	}

	req := openai.ChatCompletionNewParams{
		Model: shared.ChatModelGPT4oMini,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Tools: []openai.ChatCompletionToolParam{{
			Function: fn,
		}},
		ToolChoice: openai.ChatCompletionToolChoiceOptionUnionParam{
			OfChatCompletionNamedToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
				Function: openai.ChatCompletionNamedToolChoiceFunctionParam{
					Name: name,
				},
			},
		},
	}

	resp, err := s.client.Chat.Completions.New(ctx, req)
	if err != nil {
		return fmt.Errorf("openai: %w", err)
	}
	if len(resp.Choices) == 0 || len(resp.Choices[0].Message.ToolCalls) == 0 {
		return fmt.Errorf("openai: no function call returned")
	}
	if err := json.Unmarshal(
		[]byte(resp.Choices[0].Message.ToolCalls[0].Function.Arguments),
		out,
	); err != nil {
		return fmt.Errorf("unmarshal %s result: %w", name, err)
	}
	return nil
}

// templateEarnestDraft is the deterministic fallback used when the
// drafting model is disabled.
func templateEarnestDraft(in DraftContext) *DraftResult {
	deadlineLine := ""
	if in.EarnestDeadline != nil {
		deadlineLine = fmt.Sprintf(" The contract deadline for the deposit is %s.",
			in.EarnestDeadline.Format("January 2, 2006"))
	}
	body := fmt.Sprintf(
		"Hi %s,\n\nWe are under contract on %s (buyer: %s) and would like to open escrow. "+
			"The executed purchase contract is attached. The earnest-money deposit is %s.%s\n\n"+
			"Could you send over wire instructions at your earliest convenience?\n\nThank you",
		in.EscrowOfficerName,
		in.PropertyAddress,
		in.BuyerName,
		formatCents(in.EarnestAmountCents),
		deadlineLine,
	)
	return &DraftResult{
		Subject:          fmt.Sprintf("Earnest Money Deposit – %s", in.PropertyAddress),
		Body:             body,
		GenerationReason: "template fallback; drafting model disabled",
	}
}

func formatCents(c int64) string {
	return fmt.Sprintf("$%.2f", float64(c)/100)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// pdfTextPreview pulls printable ASCII runs out of the raw PDF bytes.
// Good enough to give the model something for text-based PDFs; scanned
// documents simply yield an empty preview.
func pdfTextPreview(pdf []byte) string {
	const (
		scanLimit = 64 * 1024
		runMin    = 4
		outMax    = 4000
	)
	if len(pdf) > scanLimit {
		pdf = pdf[:scanLimit]
	}
	var (
		b   strings.Builder
		run []byte
	)
	flush := func() {
		if len(run) >= runMin {
			b.Write(run)
			b.WriteByte(' ')
		}
		run = run[:0]
	}
	for _, c := range pdf {
		if c >= 0x20 && c < 0x7f {
			run = append(run, c)
			continue
		}
		flush()
		if b.Len() >= outMax {
			break
		}
	}
	flush()
	s := b.String()
	if len(s) > outMax {
		s = s[:outMax]
	}
	return s
}
