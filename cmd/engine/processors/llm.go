package processors

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"github.com/tidwall/gjson"

	"github.com/framefold/canvas/cmd/engine/resolver"
	"github.com/framefold/canvas/common/models"
	"github.com/framefold/canvas/common/session"
)

// ChatCompleter is the slice of the OpenAI client the LLM processor uses
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ChatClientFactory builds a chat client for a caller's API key
type ChatClientFactory func(apiKey string) ChatCompleter

// OpenAIChatFactory returns a factory producing real OpenAI clients,
// optionally pointed at a compatible gateway
func OpenAIChatFactory(baseURL string) ChatClientFactory {
	return func(apiKey string) ChatCompleter {
		cfg := openai.DefaultConfig(apiKey)
		if baseURL != "" {
			cfg.BaseURL = baseURL
		}
		return openai.NewClientWithConfig(cfg)
	}
}

// LLMProcessor runs a chat completion over the node's resolved prompt.
// When the node config names a session, prior turns are replayed as context
// and the new exchange is appended back, giving the node chat memory across
// runs.
type LLMProcessor struct {
	resolver     *resolver.Resolver
	sessions     *session.Store
	newClient    ChatClientFactory
	defaultModel string
	fallbackKey  string
	logger       Logger
}

// NewLLMProcessor creates an LLM processor
func NewLLMProcessor(res *resolver.Resolver, sessions *session.Store, factory ChatClientFactory, defaultModel, fallbackKey string, logger Logger) *LLMProcessor {
	return &LLMProcessor{
		resolver:     res,
		sessions:     sessions,
		newClient:    factory,
		defaultModel: defaultModel,
		fallbackKey:  fallbackKey,
		logger:       logger,
	}
}

func (p *LLMProcessor) Type() models.NodeType {
	return models.NodeTypeLLM
}

func (p *LLMProcessor) Process(ctx context.Context, in *Input) (*Result, error) {
	promptItem, err := p.resolver.GetInputValue(in.Snapshot, in.Node.ID, true, resolver.InputFilter{
		DataType: models.DataTypeText,
		Label:    "Prompt",
	})
	if err != nil {
		return nil, err
	}
	prompt, ok := promptItem.Text()
	if !ok {
		return Failure("llm node %s received a non-text prompt", in.Node.ID), nil
	}

	system, err := p.systemPrompt(in)
	if err != nil {
		return nil, err
	}

	apiKey := in.Snapshot.APIKey
	if apiKey == "" {
		apiKey = p.fallbackKey
	}
	if apiKey == "" {
		return Failure("llm node %s has no API key to call the model with", in.Node.ID), nil
	}

	model := gjson.GetBytes(in.Node.Config, "model").String()
	if model == "" {
		model = p.defaultModel
	}

	var messages []openai.ChatCompletionMessage
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	sess, err := p.loadSession(ctx, in)
	if err != nil {
		return nil, err
	}
	if sess != nil {
		for _, ev := range sess.Events {
			text, _ := ev.Content["text"].(string)
			if text == "" {
				continue
			}
			role := openai.ChatMessageRoleAssistant
			if ev.Author == "user" {
				role = openai.ChatMessageRoleUser
			}
			messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: text})
		}
	}

	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	})

	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}
	if temp := gjson.GetBytes(in.Node.Config, "temperature"); temp.Exists() {
		req.Temperature = float32(temp.Float())
	}

	resp, err := p.newClient(apiKey).CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Failure("llm node %s received no completion choices", in.Node.ID), nil
	}
	reply := resp.Choices[0].Message.Content

	p.recordTurn(ctx, in, sess, prompt, reply)

	result := &models.NodeResult{
		Outputs: []models.Output{
			{Items: []models.OutputItem{{
				Type:           models.DataTypeText,
				Data:           reply,
				OutputHandleID: outputHandleID(in.Snapshot, in.Node.ID),
			}}},
		},
	}
	return Succeed(result), nil
}

// systemPrompt resolves the optional System input, falling back to config
func (p *LLMProcessor) systemPrompt(in *Input) (string, error) {
	item, err := p.resolver.GetInputValue(in.Snapshot, in.Node.ID, false, resolver.InputFilter{
		DataType: models.DataTypeText,
		Label:    "System",
	})
	if err != nil {
		return "", err
	}
	if item != nil {
		if s, ok := item.Text(); ok {
			return s, nil
		}
	}
	return gjson.GetBytes(in.Node.Config, "systemPrompt").String(), nil
}

// loadSession fetches the node's chat session when one is configured,
// creating it on first use. Returns nil when the node is memoryless.
func (p *LLMProcessor) loadSession(ctx context.Context, in *Input) (*session.Session, error) {
	sessionID := gjson.GetBytes(in.Node.Config, "sessionId").String()
	if sessionID == "" || p.sessions == nil {
		return nil, nil
	}

	appName := gjson.GetBytes(in.Node.Config, "appName").String()
	if appName == "" {
		appName = "canvas"
	}
	userID := in.Snapshot.Canvas.UserID
	window := int(gjson.GetBytes(in.Node.Config, "memoryWindow").Int())
	if window <= 0 {
		window = 20
	}

	sess, err := p.sessions.Get(ctx, appName, userID, sessionID, session.GetOptions{NumRecentEvents: window})
	if errors.Is(err, session.ErrSessionNotFound) {
		sess, err = p.sessions.Create(ctx, appName, userID, sessionID, nil)
		if errors.Is(err, session.ErrSessionAlreadyExists) {
			// Lost a create race; the session exists now
			sess, err = p.sessions.Get(ctx, appName, userID, sessionID, session.GetOptions{NumRecentEvents: window})
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load chat session: %w", err)
	}
	return sess, nil
}

// recordTurn appends the exchange to the session. The completion already
// succeeded, so append failures degrade memory rather than fail the task.
func (p *LLMProcessor) recordTurn(ctx context.Context, in *Input, sess *session.Session, prompt, reply string) {
	if sess == nil {
		return
	}

	invocationID := in.Node.ID.String()
	if in.Snapshot.Task != nil {
		invocationID = in.Snapshot.Task.ID.String()
	}

	userEvent := session.NewEvent("user")
	userEvent.InvocationID = invocationID
	userEvent.Content = map[string]interface{}{"text": prompt}
	if _, err := p.sessions.AppendEvent(ctx, sess, userEvent); err != nil {
		p.logger.Warn("failed to record user turn", "session_id", sess.ID, "error", err)
		return
	}

	assistantEvent := session.NewEvent("assistant")
	assistantEvent.InvocationID = invocationID
	assistantEvent.Content = map[string]interface{}{"text": reply}
	assistantEvent.Actions = session.EventActions{
		StateDelta: map[string]interface{}{"lastInvocationId": invocationID},
	}
	if _, err := p.sessions.AppendEvent(ctx, sess, assistantEvent); err != nil {
		p.logger.Warn("failed to record assistant turn", "session_id", sess.ID, "error", err)
	}
}
