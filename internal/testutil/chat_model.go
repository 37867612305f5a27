package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ErrScriptExhausted is returned when the fake model has no reply left.
var ErrScriptExhausted = errors.New("scripted chat model: no replies left")

// ScriptedReply is one canned model turn.
type ScriptedReply struct {
	Message *schema.Message
	Err     error
}

// ScriptedChatModel replays canned replies in order and records every
// request it receives.
type ScriptedChatModel struct {
	mu      sync.Mutex
	replies []ScriptedReply
	inputs  [][]*schema.Message
	tools   []*schema.ToolInfo
	options []*model.Options
}

// NewScriptedChatModel creates a fake model replying with replies in order.
func NewScriptedChatModel(replies ...ScriptedReply) *ScriptedChatModel {
	return &ScriptedChatModel{replies: replies}
}

// Text is a plain assistant reply.
func Text(content string) ScriptedReply {
	return ScriptedReply{Message: schema.AssistantMessage(content, nil)}
}

// ToolCall is an assistant turn calling one tool.
func ToolCall(id, name, arguments string) ScriptedReply {
	return ScriptedReply{Message: schema.AssistantMessage("", []schema.ToolCall{{
		ID:       id,
		Type:     "function",
		Function: schema.FunctionCall{Name: name, Arguments: arguments},
	}})}
}

// Failure is a model error.
func Failure(err error) ScriptedReply {
	return ScriptedReply{Err: err}
}

func (m *ScriptedChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.inputs = append(m.inputs, append([]*schema.Message(nil), input...))
	m.options = append(m.options, model.GetCommonOptions(&model.Options{}, opts...))
	if len(m.replies) == 0 {
		return nil, ErrScriptExhausted
	}
	next := m.replies[0]
	m.replies = m.replies[1:]
	return next.Message, next.Err
}

func (m *ScriptedChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// WithTools records the tool list and returns the same model so the script
// is shared.
func (m *ScriptedChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tools = tools
	return m, nil
}

// Inputs returns the message lists received so far.
func (m *ScriptedChatModel) Inputs() [][]*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]*schema.Message(nil), m.inputs...)
}

// Calls returns how many times the model was invoked.
func (m *ScriptedChatModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.inputs)
}

// Temperatures returns the temperature option of each call, -1 when unset.
func (m *ScriptedChatModel) Temperatures() []float32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]float32, len(m.options))
	for i, o := range m.options {
		out[i] = -1
		if o.Temperature != nil {
			out[i] = *o.Temperature
		}
	}
	return out
}

// ToolNames returns the names of the bound tools.
func (m *ScriptedChatModel) ToolNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(m.tools))
	for i, t := range m.tools {
		names[i] = t.Name
	}
	return names
}

var _ model.ToolCallingChatModel = (*ScriptedChatModel)(nil)
